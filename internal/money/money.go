// Package money содержит чистую арифметику распределения платежей.
// Все расчеты ведутся в минимальных единицах валюты (int64, центы);
// конвертация в десятичные суммы происходит только на границах I/O.
// Правило округления одно на весь сервис: половина вверх.
package money

// DefaultPlatformFeePercent доля платформы в процентах от суммы платежа
const DefaultPlatformFeePercent int64 = 30

// Split делит сумму на долю криэйтора и комиссию платформы по ставке 70/30.
// Комиссия округляется (половина вверх), доля криэйтора считается вычитанием,
// поэтому creatorShare + platformFee == total всегда выполняется точно.
func Split(total int64) (creatorShare, platformFee int64) {
	return SplitWithFee(total, DefaultPlatformFeePercent)
}

// SplitWithFee делит сумму по произвольной ставке комиссии в процентах.
func SplitWithFee(total, feePercent int64) (creatorShare, platformFee int64) {
	platformFee = roundHalfUp(total*feePercent, 100)
	creatorShare = total - platformFee
	return creatorShare, platformFee
}

// ProportionalRefund вычисляет возвращаемую часть комиссии платформы,
// пропорциональную сумме возврата: round(refundAmount / originalTotal * originalFee).
// Возврат криэйтору — это refundAmount минус результат, так что сумма частей
// всегда равна refundAmount.
func ProportionalRefund(originalTotal, originalFee, refundAmount int64) (feeRefund int64) {
	if originalTotal <= 0 {
		return 0
	}
	return roundHalfUp(refundAmount*originalFee, originalTotal)
}

// Percentage возвращает округленную долю от суммы, percent в целых процентах.
// Используется политикой отмены (10% сбор, 50% возврат на стадии записи).
func Percentage(amount, percent int64) int64 {
	return roundHalfUp(amount*percent, 100)
}

// FromMajor переводит десятичную сумму в минимальные единицы.
// Применяется только на I/O-границах, внутри сервиса суммы всегда int64.
func FromMajor(amount float64) int64 {
	if amount < 0 {
		return -FromMajor(-amount)
	}
	return int64(amount*100 + 0.5)
}

// ToMajor переводит минимальные единицы в десятичную сумму для вывода.
func ToMajor(amount int64) float64 {
	return float64(amount) / 100
}

// roundHalfUp возвращает round(num/den) c округлением половины вверх.
// Для неотрицательных аргументов: floor((2*num + den) / (2*den)).
func roundHalfUp(num, den int64) int64 {
	if den == 0 {
		return 0
	}
	return (2*num + den) / (2 * den)
}
