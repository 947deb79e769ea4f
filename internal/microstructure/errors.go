package microstructure

import (
	"errors"
	"fmt"
)

// ErrInvalidInput matches every *InputError via errors.Is
var ErrInvalidInput = errors.New("invalid input")

// InputError reports malformed snapshot or trade data. It stops the whole analysis.
type InputError struct {
	Field  string // e.g. "bids[3].price"
	Reason string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// Is lets callers test with errors.Is(err, ErrInvalidInput)
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func inputErrorf(field, format string, args ...interface{}) *InputError {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
