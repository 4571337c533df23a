package apperrors

import "errors"

var (
	ErrEmptyQuestion      = errors.New("question is empty")
	ErrNotFound           = errors.New("not found")
	ErrNoPendingVariables = errors.New("no pending variable form")
	ErrNoFocusedResponse  = errors.New("no focused response")
	ErrNotRetryable       = errors.New("focused response has no retryable error")
	ErrTypeSuffixMismatch = errors.New("training data id suffix does not match its type")
	ErrInvalidPageSize    = errors.New("invalid page size")
	ErrNoResult           = errors.New("no result table")
	ErrEmptySQL           = errors.New("sql is empty")
	ErrInjectionDetected  = errors.New("sql injection detected in variable value")
)
