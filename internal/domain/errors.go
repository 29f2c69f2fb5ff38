package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate дубликат записи
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrUnauthorized пользователь не авторизован
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidTransition недопустимый переход статуса
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPolicyViolation операция запрещена бизнес-политикой
	ErrPolicyViolation = errors.New("policy violation")

	// ErrGateway ошибка платежного шлюза
	ErrGateway = errors.New("payment gateway error")

	// ErrReconciliationConflict локальное состояние расходится с состоянием шлюза
	ErrReconciliationConflict = errors.New("reconciliation conflict")

	// ErrPersistence запись в БД не удалась после успешного вызова шлюза
	ErrPersistence = errors.New("persistence failure after gateway call")

	// ErrCreatorNotFound криэйтор не найден
	ErrCreatorNotFound = errors.New("creator not found")

	// ErrCreatorNotPayable у криэйтора не включены выплаты
	ErrCreatorNotPayable = errors.New("creator is not payment-enabled")

	// ErrIdempotencyConflict ключ идемпотентности уже использован
	ErrIdempotencyConflict = errors.New("idempotency key already used")

	// ErrPaymentRefAlreadySet у заказа уже есть привязанный платеж
	ErrPaymentRefAlreadySet = errors.New("order already has a payment reference")
)

// PolicyError представляет отказ политики отмены: без побочных эффектов,
// с объяснением для пользователя.
type PolicyError struct {
	Reason string
}

// Error реализует интерфейс error
func (e *PolicyError) Error() string {
	return fmt.Sprintf("cancellation denied: %s", e.Reason)
}

// Is проверяет принадлежность к классу PolicyViolation
func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicyViolation
}

// NewPolicyError создает новую ошибку политики
func NewPolicyError(reason string) *PolicyError {
	return &PolicyError{Reason: reason}
}

// GatewayError представляет ошибку взаимодействия с платежным шлюзом
type GatewayError struct {
	Op          string
	Code        string
	Retryable   bool
	OriginalErr error
}

// Error реализует интерфейс error
func (e *GatewayError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("gateway error [%s] during %s: %v", e.Code, e.Op, e.OriginalErr)
	}
	return fmt.Sprintf("gateway error [%s] during %s", e.Code, e.Op)
}

// Unwrap возвращает оригинальную ошибку
func (e *GatewayError) Unwrap() error {
	return e.OriginalErr
}

// Is проверяет принадлежность к классу GatewayError
func (e *GatewayError) Is(target error) bool {
	return target == ErrGateway
}

// NewGatewayError создает новую ошибку шлюза
func NewGatewayError(op, code string, retryable bool, err error) *GatewayError {
	return &GatewayError{Op: op, Code: code, Retryable: retryable, OriginalErr: err}
}

// ConflictError представляет конфликт сверки: событие шлюза ссылается на
// сущность, состояние которой уже несовместимо с событием. Логируется и
// пропускается, локальное состояние не перетирается.
type ConflictError struct {
	Entity  string
	ID      string
	Message string
}

// Error реализует интерфейс error
func (e *ConflictError) Error() string {
	return fmt.Sprintf("reconciliation conflict on %s %s: %s", e.Entity, e.ID, e.Message)
}

// Is проверяет принадлежность к классу ReconciliationConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrReconciliationConflict
}

// NewConflictError создает новый конфликт сверки
func NewConflictError(entity, id, message string) *ConflictError {
	return &ConflictError{Entity: entity, ID: id, Message: message}
}

// ValidationError представляет ошибку валидации одного поля
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors представляет набор ошибок валидации
type ValidationErrors []ValidationError

// Error реализует интерфейс error
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	if len(e) == 1 {
		return fmt.Sprintf("validation failed: %s - %s", e[0].Field, e[0].Message)
	}
	return fmt.Sprintf("validation failed: %d errors", len(e))
}

// Is проверяет принадлежность к классу ErrInvalidInput
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidInput
}

// Add добавляет ошибку валидации
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors проверяет наличие ошибок
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}
