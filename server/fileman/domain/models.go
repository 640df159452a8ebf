package domain

import (
	"encoding/json"
	"time"
)

type FileCategory string

const (
	CategoryResume      FileCategory = "resume"
	CategoryCoverLetter FileCategory = "cover_letter"
	CategoryPortfolio   FileCategory = "portfolio"
	CategoryCertificate FileCategory = "certificate"
	CategoryOther       FileCategory = "other"
)

func (c FileCategory) Valid() bool {
	switch c {
	case CategoryResume, CategoryCoverLetter, CategoryPortfolio, CategoryCertificate, CategoryOther:
		return true
	}
	return false
}

type ProcessedStatus string

const (
	StatusPending    ProcessedStatus = "pending"
	StatusProcessing ProcessedStatus = "processing"
	StatusCompleted  ProcessedStatus = "completed"
	StatusFailed     ProcessedStatus = "failed"
)

type SharePermission string

const (
	PermissionView     SharePermission = "view"
	PermissionDownload SharePermission = "download"
)

func (p SharePermission) Valid() bool {
	return p == PermissionView || p == PermissionDownload
}

type ShareEntry struct {
	UserID     string          `json:"user_id"`
	Permission SharePermission `json:"permission"`
	SharedAt   time.Time       `json:"shared_at"`
}

type FileRecord struct {
	ID              string          `json:"id"`
	BinaryObjectID  string          `json:"binary_object_id"`
	UploadedBy      string          `json:"uploaded_by"`
	OriginalName    string          `json:"original_name"`
	StoredFilename  string          `json:"stored_filename"`
	ContentType     string          `json:"content_type"`
	SizeBytes       int64           `json:"size_bytes"`
	Category        FileCategory    `json:"category"`
	Description     string          `json:"description"`
	ProcessedStatus ProcessedStatus `json:"processed_status"`
	Analysis        json.RawMessage `json:"analysis,omitempty"`
	IsPublic        bool            `json:"is_public"`
	SharedWith      []ShareEntry    `json:"shared_with,omitempty"`
	DownloadCount   int64           `json:"download_count"`
	LastDownloaded  *time.Time      `json:"last_downloaded,omitempty"`
	Tags            []string        `json:"tags"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (r FileRecord) SharedWithUser(userID string) bool {
	for _, entry := range r.SharedWith {
		if entry.UserID == userID {
			return true
		}
	}
	return false
}

type FileRecordPatch struct {
	Category    *FileCategory `json:"category,omitempty"`
	Description *string       `json:"description,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	IsPublic    *bool         `json:"is_public,omitempty"`
}

type CategoryStats struct {
	Category       FileCategory `json:"category"`
	Count          int64        `json:"count"`
	TotalSizeBytes int64        `json:"total_size_bytes"`
}

// Analysis is the structured shape requested from the AI provider. Providers
// occasionally return something else entirely, so a fallback value is
// substituted when the payload cannot be decoded.
type Analysis struct {
	Summary     string   `json:"summary"`
	Score       int      `json:"score"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
	Provider    string   `json:"provider,omitempty"`
}

func FallbackAnalysis(provider string) Analysis {
	return Analysis{
		Summary:     "Automatic analysis is temporarily unavailable. Please try again later.",
		Score:       0,
		Strengths:   []string{},
		Weaknesses:  []string{},
		Suggestions: []string{},
		Provider:    provider,
	}
}
