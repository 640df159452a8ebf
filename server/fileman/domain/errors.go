package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both a missing record and a record the actor may not
	// see. Handlers return one uniform message for both so record existence
	// is not leaked to unauthorized callers.
	ErrNotFound = errors.New("file not found or access denied")

	// ErrBlobMissing means the FileRecord exists but its binary object is
	// gone from the store (orphaned record).
	ErrBlobMissing = errors.New("binary object missing for file record")

	ErrPreviewNotAllowed = errors.New("content type is not previewable")
	ErrUpstream          = errors.New("analysis provider failed")

	// ErrConsistency marks a partially completed cross-store cascade, e.g. the
	// binary object was deleted but the metadata record or a denormalized
	// profile reference could not be cleaned up.
	ErrConsistency = errors.New("cross-store cleanup incomplete")

	ErrShareTargetMissing = errors.New("share target user not found")
)

const (
	CodeSizeExceeded         = "SizeExceeded"
	CodeUnsupportedType      = "UnsupportedType"
	CodeUnsupportedExtension = "UnsupportedExtension"
	CodeTooManyFiles         = "TooManyFiles"
	CodeInvalidCategory      = "InvalidCategory"
	CodeDescriptionTooLong   = "DescriptionTooLong"
)

type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewValidationError(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func ValidationCode(err error) (string, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Code, true
	}
	return "", false
}
