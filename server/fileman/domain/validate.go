package domain

import (
	"path/filepath"
	"strings"
)

const (
	MaxBatchFiles        = 5
	MaxDescriptionLength = 200
	DefaultMaxUploadSize = 10 * 1024 * 1024
)

// allowedTypes maps every accepted content type to the file extensions that
// are consistent with it. Both checks run at upload time, extension after
// content type, so a mismatched pair is reported as an extension problem.
var allowedTypes = map[string][]string{
	"application/pdf":    {".pdf"},
	"application/msword": {".doc"},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {".docx"},
	"text/plain":      {".txt"},
	"application/rtf": {".rtf"},
	"text/rtf":        {".rtf"},
}

var previewableTypes = map[string]struct{}{
	"application/pdf": {},
	"text/plain":      {},
	"application/rtf": {},
	"text/rtf":        {},
}

type UploadLimits struct {
	MaxSizeBytes int64
}

func DefaultUploadLimits() UploadLimits {
	return UploadLimits{MaxSizeBytes: DefaultMaxUploadSize}
}

// ValidateUpload runs the pre-transfer checks in order: size, content type,
// extension. It fails fast so nothing is written to the binary store for a
// rejected file.
func ValidateUpload(name, contentType string, size int64, limits UploadLimits) error {
	if limits.MaxSizeBytes > 0 && size > limits.MaxSizeBytes {
		return NewValidationError(CodeSizeExceeded, "file %q exceeds the maximum size of %d bytes", name, limits.MaxSizeBytes)
	}

	normalized := normalizeContentType(contentType)
	extensions, ok := allowedTypes[normalized]
	if !ok {
		return NewValidationError(CodeUnsupportedType, "content type %q is not allowed", contentType)
	}

	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range extensions {
		if ext == allowed {
			return nil
		}
	}
	return NewValidationError(CodeUnsupportedExtension, "extension %q does not match content type %q", ext, contentType)
}

func Previewable(contentType string) bool {
	_, ok := previewableTypes[normalizeContentType(contentType)]
	return ok
}

func normalizeContentType(contentType string) string {
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(normalized, ";"); idx >= 0 {
		normalized = strings.TrimSpace(normalized[:idx])
	}
	return normalized
}
