package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name        string
		total       int64
		wantFee     int64
		wantCreator int64
	}{
		{"even hundred", 10000, 3000, 7000},
		{"video price 49.99", 4999, 1500, 3499},
		{"single cent", 1, 0, 1},
		{"two cents", 2, 1, 1},
		{"half rounds up", 5, 2, 3},
		{"odd amount", 3333, 1000, 2333},
		{"large amount", 99999999, 30000000, 69999999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator, fee := Split(tt.total)
			assert.Equal(t, tt.wantFee, fee)
			assert.Equal(t, tt.wantCreator, creator)
		})
	}
}

// Доля криэйтора и комиссия обязаны сходиться в исходную сумму
// на всем диапазоне, включая суммы с неточным делением.
func TestSplitConservation(t *testing.T) {
	for total := int64(1); total <= 100000; total++ {
		creator, fee := Split(total)
		require.Equal(t, total, creator+fee, "split must conserve total for %d", total)
		require.GreaterOrEqual(t, fee, int64(0))
		require.GreaterOrEqual(t, creator, int64(0))
	}
}

func TestSplitWithFee(t *testing.T) {
	creator, fee := SplitWithFee(10000, 20)
	assert.Equal(t, int64(2000), fee)
	assert.Equal(t, int64(8000), creator)

	creator, fee = SplitWithFee(777, 0)
	assert.Equal(t, int64(0), fee)
	assert.Equal(t, int64(777), creator)

	creator, fee = SplitWithFee(777, 100)
	assert.Equal(t, int64(777), fee)
	assert.Equal(t, int64(0), creator)
}

func TestProportionalRefund(t *testing.T) {
	tests := []struct {
		name          string
		originalTotal int64
		originalFee   int64
		refundAmount  int64
		wantFeeRefund int64
	}{
		{"full refund returns full fee", 10000, 3000, 10000, 3000},
		{"half refund returns half fee", 10000, 3000, 5000, 1500},
		{"quarter refund rounds half up", 10000, 3000, 2500, 750},
		{"ninety percent after cancellation fee", 10000, 3000, 9000, 2700},
		{"tiny refund", 10000, 3000, 1, 0},
		{"uneven original", 4999, 1500, 2499, 750},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feeRefund := ProportionalRefund(tt.originalTotal, tt.originalFee, tt.refundAmount)
			assert.Equal(t, tt.wantFeeRefund, feeRefund)

			creatorRefund := tt.refundAmount - feeRefund
			assert.Equal(t, tt.refundAmount, feeRefund+creatorRefund)
			assert.GreaterOrEqual(t, creatorRefund, int64(0))
		})
	}
}

func TestProportionalRefundZeroTotal(t *testing.T) {
	assert.Equal(t, int64(0), ProportionalRefund(0, 0, 100))
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, int64(1000), Percentage(10000, 10))
	assert.Equal(t, int64(500), Percentage(4999, 10))
	assert.Equal(t, int64(2500), Percentage(5000, 50))
	assert.Equal(t, int64(1), Percentage(1, 50))
}

func TestMajorConversion(t *testing.T) {
	assert.Equal(t, int64(9999), FromMajor(99.99))
	assert.Equal(t, int64(10000), FromMajor(100.0))
	assert.Equal(t, int64(1), FromMajor(0.01))
	assert.Equal(t, int64(-9999), FromMajor(-99.99))

	assert.Equal(t, 99.99, ToMajor(9999))
	assert.Equal(t, 0.01, ToMajor(1))
}
