package position

import (
	"errors"
	"fmt"
)

// Kind identifies the class of failure a domain operation produced.
// It mirrors the error-kind vocabulary the whole pipeline (use cases,
// repository, stream consumer) pattern-matches on.
type Kind string

const (
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindOversell          Kind = "OVERSELL"
	KindDuplicatedPosition Kind = "DUPLICATED_POSITION"
	KindAlreadyProcessed  Kind = "ALREADY_PROCESSED"
	KindPersistenceError  Kind = "PERSISTENCE_ERROR"
	KindUnexpectedError   Kind = "UNEXPECTED_ERROR"
)

// DomainError is a typed failure returned by aggregate mutators and the
// repository port instead of a language-level exception.
type DomainError struct {
	Kind    Kind
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind Kind, format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ErrorKind extracts the Kind from err if it is (or wraps) a *DomainError.
func ErrorKind(err error) (Kind, bool) {
	var de *DomainError
	if !errors.As(err, &de) {
		return "", false
	}
	return de.Kind, true
}

// ErrDuplicatedPosition is returned by a repository when a unique
// constraint on ticker is violated by a concurrent insert.
func ErrDuplicatedPosition(ticker string) error {
	return newError(KindDuplicatedPosition, "position for ticker %s already exists", ticker)
}

// ErrAlreadyProcessed is returned by a repository when a unique
// constraint on transaction id is violated.
func ErrAlreadyProcessed(txID string) error {
	return newError(KindAlreadyProcessed, "transaction %s already processed", txID)
}

// ErrPersistence wraps a lower-level storage fault.
func ErrPersistence(cause error) error {
	return newError(KindPersistenceError, "persistence error: %v", cause)
}

// ErrPersistenceIfNotNil is a convenience for call sites that only want
// to wrap a non-nil error (e.g. rows.Err() after a scan loop).
func ErrPersistenceIfNotNil(cause error) error {
	if cause == nil {
		return nil
	}
	return ErrPersistence(cause)
}
