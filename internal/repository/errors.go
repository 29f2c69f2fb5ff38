package repository

import "errors"

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate нарушение уникальности
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidData неверный формат данных
	ErrInvalidData = errors.New("invalid data format")

	// ErrStaleStatus статус записи изменился между чтением и записью
	ErrStaleStatus = errors.New("status changed concurrently")
)
