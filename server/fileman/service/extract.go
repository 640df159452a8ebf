package service

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// ExtractText pulls plain text out of a buffered document so it can be fed
// to an AI provider as part of a prompt.
func ExtractText(contentType string, data []byte) (string, error) {
	switch normalizeContentType(contentType) {
	case "text/plain":
		return string(data), nil
	case "application/pdf":
		return extractPDFText(data)
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return extractDocxText(data)
	case "application/rtf", "text/rtf":
		return extractRTFText(string(data)), nil
	default:
		return "", fmt.Errorf("text extraction is not supported for %q", contentType)
	}
}

func normalizeContentType(contentType string) string {
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(normalized, ";"); idx >= 0 {
		normalized = strings.TrimSpace(normalized[:idx])
	}
	return normalized
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	var builder strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, _ := page.GetPlainText(nil)
		builder.WriteString(text)
	}
	return builder.String(), nil
}

func extractDocxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}
	defer doc.Close()
	return doc.Editable().GetContent(), nil
}

// extractRTFText strips RTF control words and group braces. Good enough for
// prompt input; not a full RTF parser.
func extractRTFText(raw string) string {
	var builder strings.Builder
	inControl := false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case inControl:
			switch {
			case ch == ' ':
				inControl = false
			case ch == '\\':
				// next control word starts immediately
			case ch == '{' || ch == '}':
				inControl = false
			case !isControlChar(ch):
				inControl = false
				builder.WriteByte(ch)
			}
		case ch == '\\':
			inControl = true
		case ch == '{' || ch == '}':
			// group delimiters carry no text
		case ch == '\r' || ch == '\n':
			// physical line breaks in RTF are not document content
		default:
			builder.WriteByte(ch)
		}
	}
	return strings.TrimSpace(builder.String())
}

func isControlChar(ch byte) bool {
	return ch == '*' || ch == '\'' || ch == '-' || ch == '_' || ch == '~' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}
