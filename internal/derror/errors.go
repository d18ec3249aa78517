package derror

import (
	"errors"
	"fmt"
)

// Validation failures caught at file selection, before any network call.
var (
	ErrNotPDF       = errors.New("please upload a PDF file only")
	ErrFileTooLarge = errors.New("file is too large")
)

// FileTooLarge is ErrFileTooLarge worded against the configured cap, so
// the user-facing message follows MAX_UPLOAD_MB.
func FileTooLarge(maxMB int64) error {
	return &fileTooLargeError{maxMB: maxMB}
}

type fileTooLargeError struct{ maxMB int64 }

func (e *fileTooLargeError) Error() string {
	return fmt.Sprintf("file size should be less than %dMB", e.maxMB)
}

func (e *fileTooLargeError) Unwrap() error { return ErrFileTooLarge }

// Precondition failures: the action is refused, never fatal.
var (
	ErrNoFileSelected = errors.New("please select a PDF file first")
	ErrUploadInFlight = errors.New("an upload is already in progress")
	ErrLastThread     = errors.New("cannot delete the only remaining chat")
	ErrThreadNotFound = errors.New("chat thread not found")
)

// IsValidation reports whether err is a local file validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNotPDF) || errors.Is(err, ErrFileTooLarge)
}

// IsPrecondition reports whether err is a refused-state failure.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrNoFileSelected) ||
		errors.Is(err, ErrUploadInFlight) ||
		errors.Is(err, ErrLastThread) ||
		errors.Is(err, ErrThreadNotFound)
}
