package domain

import "time"

type UserRole string

const (
	RoleInterviewee UserRole = "interviewee"
	RoleInterviewer UserRole = "interviewer"
	RoleAdmin       UserRole = "admin"
)

func (r UserRole) Valid() bool {
	return r == RoleInterviewee || r == RoleInterviewer || r == RoleAdmin
}

type User struct {
	ID              string           `json:"id"`
	Email           string           `json:"email"`
	Name            string           `json:"name"`
	Role            UserRole         `json:"role"`
	PasswordHash    string           `json:"-"`
	GoogleID        string           `json:"-"`
	AvatarKey       string           `json:"avatar_key,omitempty"`
	AvatarThumbKey  string           `json:"avatar_thumb_key,omitempty"`
	Headline        string           `json:"headline,omitempty"`
	Bio             string           `json:"bio,omitempty"`
	ResumeDocuments []ResumeDocument `json:"resume_documents"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ResumeDocument is the denormalized summary kept on the user row for every
// resume-category upload, so profile reads never touch the files service.
type ResumeDocument struct {
	Name           string    `json:"name"`
	BinaryObjectID string    `json:"binary_object_id"`
	UploadDate     time.Time `json:"upload_date"`
	FileType       string    `json:"file_type"`
	FileSizeBytes  int64     `json:"file_size_bytes"`
}

type ProfilePatch struct {
	Name     *string `json:"name,omitempty"`
	Headline *string `json:"headline,omitempty"`
	Bio      *string `json:"bio,omitempty"`
}
