package sentiment

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned while the model has not finished loading.
var ErrNotReady = errors.New("model is not ready")

// ValidationError reports malformed client input. It never reaches the model.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InternalError wraps an unexpected failure during inference or scoring.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) || errors.Is(err, ErrNotReady) {
		return err
	}
	var ie *InternalError
	if errors.As(err, &ie) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

// IsValidation reports whether err is a client input error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
