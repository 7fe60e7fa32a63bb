package document

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrImport     = errors.New("import failed")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ImportError wraps a conversion failure. Its message is the single
// user-facing text; the cause is kept for logs.
type ImportError struct {
	Filename string
	Err      error
}

func (e *ImportError) Error() string { return "failed to import; try again" }

func (e *ImportError) Unwrap() error { return e.Err }

func (e *ImportError) Is(target error) bool { return target == ErrImport }
