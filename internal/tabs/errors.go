package tabs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced tab, audio file or video link does
	// not exist.
	ErrNotFound = errors.New("tabs: not found")
	// ErrConflict indicates a duplicate audio filename or video link on add.
	ErrConflict = errors.New("tabs: conflict")
	// ErrValidation indicates caller input that fails schema validation.
	ErrValidation = errors.New("tabs: validation failed")
	// ErrTranscodeFailed indicates the external transcoder reported failure or
	// produced empty output.
	ErrTranscodeFailed = errors.New("tabs: transcode failed")
)

// StoreError tags a failure with the operation that produced it.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code of the failure.
func (e *StoreError) Code() string {
	return e.code
}

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
