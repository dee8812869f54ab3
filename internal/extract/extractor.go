// Package extract converts training item inputs into plain text for the
// prompt compiler.
package extract

import (
	"errors"
	"fmt"
	"strings"
)

// ErrProviderNotConfigured means the document extraction provider credential
// is missing. This is a deployment configuration problem, not a property of
// the submitted document.
var ErrProviderNotConfigured = errors.New("document extraction provider credential not configured")

// ExtractionError is a source fetch/parse/provider failure. Cause is written
// for direct display to the seller and is persisted on the training item.
type ExtractionError struct {
	Cause string
	Err   error
}

func (e *ExtractionError) Error() string {
	return e.Cause
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func extractionErrorf(err error, format string, args ...any) *ExtractionError {
	return &ExtractionError{Cause: fmt.Sprintf(format, args...), Err: err}
}

// Text extracts a verbatim text submission. It never fails; empty input is
// rejected upstream by the lifecycle manager.
func Text(content string) string {
	return strings.TrimSpace(content)
}
