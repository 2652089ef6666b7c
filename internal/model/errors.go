package model

import (
	"errors"
	"strings"
)

// ErrValidation matches every ValidationError via errors.Is.
var ErrValidation = errors.New("invalid event")

// ValidationError lists every problem found while constructing an Event.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid event: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
