// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("not found")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("conflict")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("validation error")
	// ErrUnauthorized — нет или неверные учётные данные.
	ErrUnauthorized = errors.New("unauthorized")
)

// Error — ошибка сервиса с сообщением, которое можно вернуть клиенту.
// Kind — один из sentinel-ов выше, проверяется через errors.Is.
type Error struct {
	Kind    error
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

// Unwrap позволяет errors.Is находить как Kind, так и исходную причину.
func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

// errorf создаёт ошибку вида kind с клиентским сообщением.
func errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrapf — как errorf, но сохраняет исходную причину.
func wrapf(kind, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Message возвращает клиентское сообщение ошибки сервиса или fallback.
func Message(err error, fallback string) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return fallback
}
