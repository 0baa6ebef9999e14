package repository

import "errors"

// Sentinel kinds for store errors. Implementations map their driver
// errors onto these so callers can branch with errors.Is.
var (
	ErrNotFound   = errors.New("record not found")
	ErrConflict   = errors.New("record already exists")
	ErrValidation = errors.New("invalid record")
)
