package exchange

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownFormat = errors.New("exchange: unknown format")
	ErrInvalidImport = errors.New("exchange: invalid import")
)

// ImportError lists every problem found in an import file.
type ImportError struct {
	Filename string
	Issues   []string
}

func (e *ImportError) Error() string {
	if e == nil {
		return ""
	}
	name := e.Filename
	if name == "" {
		name = "<upload>"
	}
	return fmt.Sprintf("exchange: %s: %s", name, strings.Join(e.Issues, "; "))
}

func (e *ImportError) Unwrap() error {
	return ErrInvalidImport
}

// Issues extracts the issue list from err, or a single message for other errors.
func Issues(err error) []string {
	if err == nil {
		return nil
	}
	var importErr *ImportError
	if errors.As(err, &importErr) {
		return append([]string(nil), importErr.Issues...)
	}
	return []string{err.Error()}
}
