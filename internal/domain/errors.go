package domain

import "errors"

// Error taxonomy shared by workflow, repositories, services and handlers.
// Callers wrap these with context via fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidStage = errors.New("invalid stage")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)
