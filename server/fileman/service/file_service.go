package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	commonlog "interview_server/server/common/log"
	"interview_server/server/fileman/domain"
	userdomain "interview_server/server/userhub/domain"
)

const statsCacheTTL = 60 * time.Second

type blobStore interface {
	Put(ctx context.Context, objectID string, r io.Reader, size int64, contentType string, meta map[string]string) error
	Open(ctx context.Context, objectID string) (io.ReadCloser, BlobInfo, error)
	Delete(ctx context.Context, objectID string) error
}

type fileRepo interface {
	Create(ctx context.Context, item domain.FileRecord) (domain.FileRecord, error)
	GetByID(ctx context.Context, id string) (domain.FileRecord, error)
	ListByOwner(ctx context.Context, ownerID string, category domain.FileCategory, page, limit int) ([]domain.FileRecord, int64, error)
	UpdateMetadata(ctx context.Context, id string, patch domain.FileRecordPatch) error
	UpsertShare(ctx context.Context, fileID, userID string, permission domain.SharePermission) error
	RemoveShare(ctx context.Context, fileID, userID string) error
	IncrementDownload(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status domain.ProcessedStatus) error
	SetAnalysis(ctx context.Context, id string, status domain.ProcessedStatus, analysis []byte) error
	Delete(ctx context.Context, id string) error
	StatsByOwner(ctx context.Context, ownerID string) ([]domain.CategoryStats, error)
}

type userDirectory interface {
	ResolveUser(ctx context.Context, userID string) (ResolvedUser, error)
	AddResumeDocument(ctx context.Context, userID string, doc userdomain.ResumeDocument) error
	RemoveResumeDocument(ctx context.Context, userID, binaryObjectID string) error
}

type DocumentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, data []byte, contentType string) (domain.Analysis, error)
}

type eventSink interface {
	PublishFileEvent(ctx context.Context, event FileEvent)
}

type FileService struct {
	store    blobStore
	repo     fileRepo
	users    userDirectory
	analyzer DocumentAnalyzer
	events   eventSink
	redis    *redis.Client
	limits   domain.UploadLimits
}

func NewFileService(store blobStore, repo fileRepo, users userDirectory, analyzer DocumentAnalyzer, events eventSink, rdb *redis.Client, limits domain.UploadLimits) *FileService {
	return &FileService{
		store:    store,
		repo:     repo,
		users:    users,
		analyzer: analyzer,
		events:   events,
		redis:    rdb,
		limits:   limits,
	}
}

type UploadInput struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type UploadOptions struct {
	Category    domain.FileCategory
	Description string
	Tags        []string
}

type RejectedFile struct {
	Name   string `json:"name"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type UploadReport struct {
	Accepted  []domain.FileRecord `json:"accepted"`
	Rejected  []RejectedFile      `json:"rejected"`
	Attempted int                 `json:"attempted"`
	Succeeded int                 `json:"succeeded"`
}

// Upload runs the two-store saga per file: validate, commit bytes to the
// binary store, then create the metadata record. A failure in one file never
// aborts the rest of the batch. If the record insert fails after the blob
// was committed the blob is deleted again, so no orphaned binary survives a
// failed upload.
func (s *FileService) Upload(ctx context.Context, actorID string, inputs []UploadInput, opts UploadOptions) (UploadReport, error) {
	if len(inputs) == 0 {
		return UploadReport{}, domain.NewValidationError(domain.CodeTooManyFiles, "at least one file is required")
	}
	if len(inputs) > domain.MaxBatchFiles {
		return UploadReport{}, domain.NewValidationError(domain.CodeTooManyFiles, "at most %d files per upload", domain.MaxBatchFiles)
	}
	if opts.Category == "" {
		opts.Category = domain.CategoryOther
	}
	if !opts.Category.Valid() {
		return UploadReport{}, domain.NewValidationError(domain.CodeInvalidCategory, "unknown category %q", opts.Category)
	}
	if len(opts.Description) > domain.MaxDescriptionLength {
		return UploadReport{}, domain.NewValidationError(domain.CodeDescriptionTooLong, "description must be at most %d characters", domain.MaxDescriptionLength)
	}

	report := UploadReport{Attempted: len(inputs)}
	for _, input := range inputs {
		rec, err := s.uploadOne(ctx, actorID, input, opts)
		if err != nil {
			code := "UploadFailed"
			if validationCode, ok := domain.ValidationCode(err); ok {
				code = validationCode
			}
			report.Rejected = append(report.Rejected, RejectedFile{Name: input.Name, Code: code, Reason: err.Error()})
			continue
		}
		report.Accepted = append(report.Accepted, rec)
		report.Succeeded++
	}
	return report, nil
}

func (s *FileService) uploadOne(ctx context.Context, actorID string, input UploadInput, opts UploadOptions) (domain.FileRecord, error) {
	if err := domain.ValidateUpload(input.Name, input.ContentType, input.Size, s.limits); err != nil {
		return domain.FileRecord{}, err
	}

	binaryObjectID := domain.NewObjectID()
	storedFilename := binaryObjectID + strings.ToLower(filepath.Ext(input.Name))
	meta := map[string]string{
		"original-name": input.Name,
		"uploaded-by":   actorID,
		"category":      string(opts.Category),
		"upload-date":   time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.store.Put(ctx, binaryObjectID, input.Reader, input.Size, input.ContentType, meta); err != nil {
		return domain.FileRecord{}, err
	}

	rec := domain.FileRecord{
		ID:              domain.NewObjectID(),
		BinaryObjectID:  binaryObjectID,
		UploadedBy:      actorID,
		OriginalName:    input.Name,
		StoredFilename:  storedFilename,
		ContentType:     input.ContentType,
		SizeBytes:       input.Size,
		Category:        opts.Category,
		Description:     opts.Description,
		ProcessedStatus: domain.StatusPending,
		Tags:            normalizeTags(opts.Tags),
	}
	created, err := s.repo.Create(ctx, rec)
	if err != nil {
		// Compensate: the blob committed but the record did not, delete the
		// blob again rather than leave an orphaned binary behind.
		if delErr := s.store.Delete(ctx, binaryObjectID); delErr != nil {
			commonlog.Errorf("compensating blob delete %s failed: %v", binaryObjectID, delErr)
		}
		return domain.FileRecord{}, fmt.Errorf("create file record: %w", err)
	}

	if created.Category == domain.CategoryResume {
		doc := userdomain.ResumeDocument{
			Name:           created.OriginalName,
			BinaryObjectID: created.BinaryObjectID,
			UploadDate:     created.CreatedAt,
			FileType:       created.ContentType,
			FileSizeBytes:  created.SizeBytes,
		}
		if err := s.users.AddResumeDocument(ctx, actorID, doc); err != nil {
			commonlog.Warnf("append resume document for user %s file %s: %v", actorID, created.ID, err)
		}
	}

	s.events.PublishFileEvent(ctx, FileEvent{
		Kind:         EventFileUploaded,
		FileID:       created.ID,
		OwnerID:      created.UploadedBy,
		OriginalName: created.OriginalName,
		Category:     created.Category,
	})
	return created, nil
}

// Get returns the record when the actor may read it. Missing record and
// denied access collapse into one uniform error.
func (s *FileService) Get(ctx context.Context, actor Actor, fileID string) (domain.FileRecord, error) {
	rec, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		return domain.FileRecord{}, err
	}
	if !CanAccess(actor, rec, ModeRead) {
		return domain.FileRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *FileService) List(ctx context.Context, actorID string, category domain.FileCategory, page, limit int) ([]domain.FileRecord, int64, error) {
	if category != "" && !category.Valid() {
		return nil, 0, domain.NewValidationError(domain.CodeInvalidCategory, "unknown category %q", category)
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByOwner(ctx, actorID, category, page, limit)
}

func (s *FileService) Update(ctx context.Context, actor Actor, fileID string, patch domain.FileRecordPatch) (domain.FileRecord, error) {
	rec, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		return domain.FileRecord{}, err
	}
	if !CanAccess(actor, rec, ModeWrite) {
		return domain.FileRecord{}, domain.ErrNotFound
	}
	if patch.Category != nil && !patch.Category.Valid() {
		return domain.FileRecord{}, domain.NewValidationError(domain.CodeInvalidCategory, "unknown category %q", *patch.Category)
	}
	if patch.Description != nil && len(*patch.Description) > domain.MaxDescriptionLength {
		return domain.FileRecord{}, domain.NewValidationError(domain.CodeDescriptionTooLong, "description must be at most %d characters", domain.MaxDescriptionLength)
	}
	if patch.Tags != nil {
		patch.Tags = normalizeTags(patch.Tags)
	}
	if err := s.repo.UpdateMetadata(ctx, fileID, patch); err != nil {
		return domain.FileRecord{}, err
	}
	return s.repo.GetByID(ctx, fileID)
}

func (s *FileService) Share(ctx context.Context, actor Actor, fileID, targetUserID string, permission domain.SharePermission) error {
	rec, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if !CanAccess(actor, rec, ModeShare) {
		return domain.ErrNotFound
	}
	if !permission.Valid() {
		return domain.NewValidationError("InvalidPermission", "permission must be view or download")
	}
	if targetUserID == actor.ID {
		return domain.NewValidationError("InvalidShareTarget", "cannot share a file with its owner")
	}
	if _, err := s.users.ResolveUser(ctx, targetUserID); err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return domain.ErrShareTargetMissing
		}
		return fmt.Errorf("resolve share target %s: %w", targetUserID, err)
	}
	if err := s.repo.UpsertShare(ctx, fileID, targetUserID, permission); err != nil {
		return err
	}

	s.events.PublishFileEvent(ctx, FileEvent{
		Kind:         EventFileShared,
		FileID:       rec.ID,
		OwnerID:      rec.UploadedBy,
		ActorID:      actor.ID,
		OriginalName: rec.OriginalName,
		Category:     rec.Category,
		RecipientIDs: []string{targetUserID},
	})
	return nil
}

func (s *FileService) Unshare(ctx context.Context, actor Actor, fileID, targetUserID string) error {
	rec, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if !CanAccess(actor, rec, ModeShare) {
		return domain.ErrNotFound
	}
	return s.repo.RemoveShare(ctx, fileID, targetUserID)
}

type DownloadStream struct {
	Record domain.FileRecord
	Body   io.ReadCloser

	repo      fileRepo
	completed bool
}

// Complete marks the download as fully streamed. The counter moves here, in
// the terminal success path, never before, so interrupted transfers are not
// counted.
func (d *DownloadStream) Complete(ctx context.Context) error {
	if d.completed {
		return nil
	}
	d.completed = true
	return d.repo.IncrementDownload(ctx, d.Record.ID)
}

func (d *DownloadStream) Close() error {
	return d.Body.Close()
}

func (s *FileService) OpenDownload(ctx context.Context, actor Actor, fileID string) (*DownloadStream, error) {
	rec, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !CanAccess(actor, rec, ModeRead) {
		return nil, domain.ErrNotFound
	}
	return s.openStream(ctx, rec)
}

func (s *FileService) OpenPreview(ctx context.Context, actor Actor, fileID string) (*DownloadStream, error) {
	rec, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !CanAccess(actor, rec, ModeRead) {
		return nil, domain.ErrNotFound
	}
	if !domain.Previewable(rec.ContentType) {
		return nil, domain.ErrPreviewNotAllowed
	}
	return s.openStream(ctx, rec)
}

func (s *FileService) openStream(ctx context.Context, rec domain.FileRecord) (*DownloadStream, error) {
	body, info, err := s.store.Open(ctx, rec.BinaryObjectID)
	if err != nil {
		if errors.Is(err, domain.ErrBlobMissing) {
			s.flagOrphan(ctx, rec.ID)
		}
		return nil, err
	}
	// Response headers come from the stream's record copy. The store knows
	// the actual byte count, so drifted metadata must not become a wrong
	// Content-Length.
	if info.Size > 0 && info.Size != rec.SizeBytes {
		commonlog.Warnf("file %s: record says %d bytes, object holds %d", rec.ID, rec.SizeBytes, info.Size)
		rec.SizeBytes = info.Size
	}
	if info.ContentType != "" && info.ContentType != rec.ContentType {
		commonlog.Warnf("file %s: record content type %q, object stored as %q", rec.ID, rec.ContentType, info.ContentType)
		rec.ContentType = info.ContentType
	}
	return &DownloadStream{Record: rec, Body: body, repo: s.repo}, nil
}

// flagOrphan marks a record whose binary object disappeared. There is no
// cross-store transaction, so the flag is the repair signal, not a rollback.
func (s *FileService) flagOrphan(ctx context.Context, fileID string) {
	if err := s.repo.SetStatus(ctx, fileID, domain.StatusFailed); err != nil {
		commonlog.Errorf("flag orphaned file record %s: %v", fileID, err)
	}
	commonlog.Errorf("file record %s references a missing binary object", fileID)
}

// Analyze buffers the whole object because the provider needs a complete
// payload; memory here is bounded by the upload size limit. Provider failure
// degrades to a fallback analysis reported as a soft failure, never a 5xx.
func (s *FileService) Analyze(ctx context.Context, actor Actor, fileID string) (domain.Analysis, bool, error) {
	rec, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		return domain.Analysis{}, false, err
	}
	if !CanAccess(actor, rec, ModeAnalyze) {
		return domain.Analysis{}, false, domain.ErrNotFound
	}
	if s.analyzer == nil {
		return domain.Analysis{}, false, fmt.Errorf("no analysis provider configured")
	}

	body, _, err := s.store.Open(ctx, rec.BinaryObjectID)
	if err != nil {
		if errors.Is(err, domain.ErrBlobMissing) {
			s.flagOrphan(ctx, rec.ID)
		}
		return domain.Analysis{}, false, err
	}
	data, readErr := io.ReadAll(body)
	_ = body.Close()
	if readErr != nil {
		return domain.Analysis{}, false, fmt.Errorf("buffer file %s: %w", rec.ID, readErr)
	}

	if err := s.repo.SetStatus(ctx, rec.ID, domain.StatusProcessing); err != nil {
		commonlog.Warnf("mark file %s processing: %v", rec.ID, err)
	}

	analysis, analyzeErr := s.analyzer.AnalyzeDocument(ctx, data, rec.ContentType)
	if analyzeErr != nil {
		commonlog.Errorf("analyze file %s: %v", rec.ID, analyzeErr)
		fallback := domain.FallbackAnalysis("")
		s.writeAnalysis(ctx, rec.ID, domain.StatusFailed, fallback)
		return fallback, true, nil
	}

	s.writeAnalysis(ctx, rec.ID, domain.StatusCompleted, analysis)
	s.events.PublishFileEvent(ctx, FileEvent{
		Kind:         EventFileAnalyzed,
		FileID:       rec.ID,
		OwnerID:      rec.UploadedBy,
		ActorID:      actor.ID,
		OriginalName: rec.OriginalName,
		Category:     rec.Category,
	})
	return analysis, false, nil
}

func (s *FileService) writeAnalysis(ctx context.Context, fileID string, status domain.ProcessedStatus, analysis domain.Analysis) {
	raw, err := json.Marshal(analysis)
	if err != nil {
		commonlog.Errorf("marshal analysis for file %s: %v", fileID, err)
		return
	}
	if err := s.repo.SetAnalysis(ctx, fileID, status, raw); err != nil {
		commonlog.Errorf("write analysis for file %s: %v", fileID, err)
	}
}

// Delete cascades in a fixed order: binary object first, then the record,
// then the denormalized profile reference. A binary-store failure aborts
// with nothing deleted; later failures surface as consistency errors because
// the system is now partially cleaned.
func (s *FileService) Delete(ctx context.Context, actor Actor, fileID string) error {
	rec, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		return err
	}
	if !CanAccess(actor, rec, ModeDelete) {
		return domain.ErrNotFound
	}

	if err := s.store.Delete(ctx, rec.BinaryObjectID); err != nil {
		return fmt.Errorf("delete binary object: %w", err)
	}
	if err := s.repo.Delete(ctx, fileID); err != nil {
		return fmt.Errorf("%w: binary object %s deleted but record remains: %v", domain.ErrConsistency, rec.BinaryObjectID, err)
	}
	// The profile reference is keyed by binary object id and survives later
	// category changes, so the cleanup cannot key off the category at delete
	// time. Removal is a no-op when no entry matches.
	if err := s.users.RemoveResumeDocument(ctx, rec.UploadedBy, rec.BinaryObjectID); err != nil {
		return fmt.Errorf("%w: profile still references binary object %s: %v", domain.ErrConsistency, rec.BinaryObjectID, err)
	}

	s.events.PublishFileEvent(ctx, FileEvent{
		Kind:         EventFileDeleted,
		FileID:       rec.ID,
		OwnerID:      rec.UploadedBy,
		ActorID:      actor.ID,
		OriginalName: rec.OriginalName,
		Category:     rec.Category,
	})
	return nil
}

// Stats aggregates count and total size per category, scoped to the caller
// unless the caller is an admin asking for the global view.
func (s *FileService) Stats(ctx context.Context, actor Actor, global bool) ([]domain.CategoryStats, error) {
	ownerID := actor.ID
	if global && actor.Role == string(userdomain.RoleAdmin) {
		ownerID = ""
	}

	cacheKey := "files:stats:" + ownerID
	if s.redis != nil {
		if raw, err := s.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []domain.CategoryStats
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	stats, err := s.repo.StatsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if s.redis != nil {
		if raw, err := json.Marshal(stats); err == nil {
			if err := s.redis.Set(ctx, cacheKey, raw, statsCacheTTL).Err(); err != nil {
				commonlog.Debugf("cache stats for %s: %v", ownerID, err)
			}
		}
	}
	return stats, nil
}

func normalizeTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, tag := range tags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result
}
