package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySource    = errors.New("source has no header row")
	ErrMissingColumns = errors.New("required columns missing")
	ErrNoValidRows    = errors.New("no valid rows after cleaning")
)

// LoadError is the fatal failure of turning a source into a ledger. It is
// reported to the caller and never retried.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load ledger %q: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func loadError(source string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &LoadError{Source: source, Err: err}
}
