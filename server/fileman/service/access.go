package service

import (
	"interview_server/server/fileman/domain"
	userdomain "interview_server/server/userhub/domain"
)

type Actor struct {
	ID   string
	Role string
}

type AccessMode string

const (
	ModeRead    AccessMode = "read"
	ModeWrite   AccessMode = "write"
	ModeShare   AccessMode = "share"
	ModeDelete  AccessMode = "delete"
	ModeAnalyze AccessMode = "analyze"
)

// CanAccess evaluates per-request access to a file record. Sharing grants
// read only; metadata writes, sharing and deletion stay with the owner. The
// interviewer role may analyze any file regardless of ownership or sharing,
// a deliberate platform-wide reviewer privilege.
func CanAccess(actor Actor, rec domain.FileRecord, mode AccessMode) bool {
	owner := rec.UploadedBy == actor.ID
	switch mode {
	case ModeRead:
		return owner || rec.IsPublic || rec.SharedWithUser(actor.ID)
	case ModeWrite, ModeShare, ModeDelete:
		return owner
	case ModeAnalyze:
		return owner || actor.Role == string(userdomain.RoleInterviewer)
	}
	return false
}
