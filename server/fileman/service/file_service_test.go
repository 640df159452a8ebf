package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interview_server/server/fileman/domain"
	userdomain "interview_server/server/userhub/domain"
)

type fakeBlobStore struct {
	objects map[string][]byte
	putErr  error
	delErr  error
	deleted []string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}}
}

func (f *fakeBlobStore) Put(_ context.Context, objectID string, r io.Reader, _ int64, _ string, _ map[string]string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[objectID] = data
	return nil
}

func (f *fakeBlobStore) Open(_ context.Context, objectID string) (io.ReadCloser, BlobInfo, error) {
	data, ok := f.objects[objectID]
	if !ok {
		return nil, BlobInfo{}, domain.ErrBlobMissing
	}
	return io.NopCloser(bytes.NewReader(data)), BlobInfo{Size: int64(len(data))}, nil
}

func (f *fakeBlobStore) Delete(_ context.Context, objectID string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, objectID)
	delete(f.objects, objectID)
	return nil
}

type shareKey struct {
	fileID, userID string
}

type fakeFileRepo struct {
	records   map[string]domain.FileRecord
	shares    map[shareKey]domain.SharePermission
	downloads map[string]int
	statuses  map[string]domain.ProcessedStatus
	analyses  map[string][]byte
	stats     []domain.CategoryStats
	statsFor  string

	createErr error
	deleteErr error
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{
		records:   map[string]domain.FileRecord{},
		shares:    map[shareKey]domain.SharePermission{},
		downloads: map[string]int{},
		statuses:  map[string]domain.ProcessedStatus{},
		analyses:  map[string][]byte{},
	}
}

func (f *fakeFileRepo) Create(_ context.Context, item domain.FileRecord) (domain.FileRecord, error) {
	if f.createErr != nil {
		return domain.FileRecord{}, f.createErr
	}
	f.records[item.ID] = item
	return item, nil
}

func (f *fakeFileRepo) GetByID(_ context.Context, id string) (domain.FileRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return domain.FileRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeFileRepo) ListByOwner(_ context.Context, ownerID string, category domain.FileCategory, _, _ int) ([]domain.FileRecord, int64, error) {
	var out []domain.FileRecord
	for _, rec := range f.records {
		if rec.UploadedBy != ownerID {
			continue
		}
		if category != "" && rec.Category != category {
			continue
		}
		out = append(out, rec)
	}
	return out, int64(len(out)), nil
}

func (f *fakeFileRepo) UpdateMetadata(_ context.Context, id string, patch domain.FileRecordPatch) error {
	rec, ok := f.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if patch.Category != nil {
		rec.Category = *patch.Category
	}
	if patch.Description != nil {
		rec.Description = *patch.Description
	}
	if patch.Tags != nil {
		rec.Tags = patch.Tags
	}
	if patch.IsPublic != nil {
		rec.IsPublic = *patch.IsPublic
	}
	f.records[id] = rec
	return nil
}

func (f *fakeFileRepo) UpsertShare(_ context.Context, fileID, userID string, permission domain.SharePermission) error {
	f.shares[shareKey{fileID, userID}] = permission
	return nil
}

func (f *fakeFileRepo) RemoveShare(_ context.Context, fileID, userID string) error {
	delete(f.shares, shareKey{fileID, userID})
	return nil
}

func (f *fakeFileRepo) IncrementDownload(_ context.Context, id string) error {
	f.downloads[id]++
	return nil
}

func (f *fakeFileRepo) SetStatus(_ context.Context, id string, status domain.ProcessedStatus) error {
	f.statuses[id] = status
	return nil
}

func (f *fakeFileRepo) SetAnalysis(_ context.Context, id string, status domain.ProcessedStatus, analysis []byte) error {
	f.statuses[id] = status
	f.analyses[id] = analysis
	return nil
}

func (f *fakeFileRepo) Delete(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeFileRepo) StatsByOwner(_ context.Context, ownerID string) ([]domain.CategoryStats, error) {
	f.statsFor = ownerID
	return f.stats, nil
}

type fakeUserDirectory struct {
	known      map[string]ResolvedUser
	addedDocs  []userdomain.ResumeDocument
	removed    []string
	addErr     error
	removeErr  error
	resolveErr error
}

func newFakeUserDirectory(ids ...string) *fakeUserDirectory {
	known := map[string]ResolvedUser{}
	for _, id := range ids {
		known[id] = ResolvedUser{ID: id, Role: userdomain.RoleInterviewee}
	}
	return &fakeUserDirectory{known: known}
}

func (f *fakeUserDirectory) ResolveUser(_ context.Context, userID string) (ResolvedUser, error) {
	if f.resolveErr != nil {
		return ResolvedUser{}, f.resolveErr
	}
	user, ok := f.known[userID]
	if !ok {
		return ResolvedUser{}, fmt.Errorf("userhub endpoint=test: %w", userdomain.ErrUserNotFound)
	}
	return user, nil
}

func (f *fakeUserDirectory) AddResumeDocument(_ context.Context, _ string, doc userdomain.ResumeDocument) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.addedDocs = append(f.addedDocs, doc)
	return nil
}

func (f *fakeUserDirectory) RemoveResumeDocument(_ context.Context, _, binaryObjectID string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, binaryObjectID)
	return nil
}

type fakeEventSink struct {
	events []FileEvent
}

func (f *fakeEventSink) PublishFileEvent(_ context.Context, event FileEvent) {
	f.events = append(f.events, event)
}

func (f *fakeEventSink) kinds() []string {
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Kind)
	}
	return out
}

type fakeAnalyzer struct {
	analysis domain.Analysis
	err      error
}

func (f *fakeAnalyzer) AnalyzeDocument(_ context.Context, _ []byte, _ string) (domain.Analysis, error) {
	return f.analysis, f.err
}

type serviceFixture struct {
	svc      *FileService
	store    *fakeBlobStore
	repo     *fakeFileRepo
	users    *fakeUserDirectory
	events   *fakeEventSink
	analyzer *fakeAnalyzer
}

func newFixture() *serviceFixture {
	store := newFakeBlobStore()
	repo := newFakeFileRepo()
	users := newFakeUserDirectory("owner", "friend")
	events := &fakeEventSink{}
	analyzer := &fakeAnalyzer{analysis: domain.Analysis{Summary: "solid resume", Score: 82}}
	svc := NewFileService(store, repo, users, analyzer, events, nil, domain.UploadLimits{MaxSizeBytes: 1024})
	return &serviceFixture{svc: svc, store: store, repo: repo, users: users, events: events, analyzer: analyzer}
}

func pdfInput(name, content string) UploadInput {
	return UploadInput{
		Name:        name,
		ContentType: "application/pdf",
		Size:        int64(len(content)),
		Reader:      strings.NewReader(content),
	}
}

func (fx *serviceFixture) seedFile(t *testing.T, owner string, mutate func(*domain.FileRecord)) domain.FileRecord {
	t.Helper()
	report, err := fx.svc.Upload(context.Background(), owner, []UploadInput{pdfInput("resume.pdf", "%PDF-fake")}, UploadOptions{Category: domain.CategoryOther})
	require.NoError(t, err)
	require.Len(t, report.Accepted, 1)
	rec := report.Accepted[0]
	if mutate != nil {
		mutate(&rec)
		fx.repo.records[rec.ID] = rec
	}
	fx.events.events = nil
	return rec
}

func TestUploadSuccess(t *testing.T) {
	fx := newFixture()

	report, err := fx.svc.Upload(context.Background(), "owner", []UploadInput{pdfInput("resume.pdf", "hello")}, UploadOptions{
		Category:    domain.CategoryPortfolio,
		Description: "my portfolio",
		Tags:        []string{"Go", "go", " backend "},
	})
	require.NoError(t, err)
	require.Len(t, report.Accepted, 1)
	assert.Equal(t, 1, report.Succeeded)
	assert.Empty(t, report.Rejected)

	rec := report.Accepted[0]
	assert.Len(t, rec.ID, 24)
	assert.Len(t, rec.BinaryObjectID, 24)
	assert.NotEqual(t, rec.ID, rec.BinaryObjectID)
	assert.Equal(t, rec.BinaryObjectID+".pdf", rec.StoredFilename)
	assert.Equal(t, domain.StatusPending, rec.ProcessedStatus)
	assert.Equal(t, []string{"go", "backend"}, rec.Tags)

	assert.Equal(t, []byte("hello"), fx.store.objects[rec.BinaryObjectID])
	assert.Equal(t, []string{EventFileUploaded}, fx.events.kinds())
	assert.Empty(t, fx.users.addedDocs)
}

func TestUploadResumeAppendsProfileDocument(t *testing.T) {
	fx := newFixture()

	report, err := fx.svc.Upload(context.Background(), "owner", []UploadInput{pdfInput("resume.pdf", "data")}, UploadOptions{Category: domain.CategoryResume})
	require.NoError(t, err)
	require.Len(t, report.Accepted, 1)

	require.Len(t, fx.users.addedDocs, 1)
	assert.Equal(t, report.Accepted[0].BinaryObjectID, fx.users.addedDocs[0].BinaryObjectID)
	assert.Equal(t, "resume.pdf", fx.users.addedDocs[0].Name)
}

func TestUploadResumeProfileFailureDoesNotFailUpload(t *testing.T) {
	fx := newFixture()
	fx.users.addErr = errors.New("userhub down")

	report, err := fx.svc.Upload(context.Background(), "owner", []UploadInput{pdfInput("resume.pdf", "data")}, UploadOptions{Category: domain.CategoryResume})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
}

func TestUploadPartialBatch(t *testing.T) {
	fx := newFixture()

	report, err := fx.svc.Upload(context.Background(), "owner", []UploadInput{
		pdfInput("good.pdf", "ok"),
		{Name: "bad.exe", ContentType: "application/octet-stream", Size: 4, Reader: strings.NewReader("bad!")},
	}, UploadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, "bad.exe", report.Rejected[0].Name)
	assert.Equal(t, domain.CodeUnsupportedType, report.Rejected[0].Code)

	// nothing of the rejected file reached the binary store
	assert.Len(t, fx.store.objects, 1)
}

func TestUploadBatchLimit(t *testing.T) {
	fx := newFixture()

	inputs := make([]UploadInput, domain.MaxBatchFiles+1)
	for i := range inputs {
		inputs[i] = pdfInput(fmt.Sprintf("f%d.pdf", i), "x")
	}
	_, err := fx.svc.Upload(context.Background(), "owner", inputs, UploadOptions{})
	code, ok := domain.ValidationCode(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeTooManyFiles, code)

	_, err = fx.svc.Upload(context.Background(), "owner", nil, UploadOptions{})
	require.Error(t, err)
}

func TestUploadInvalidCategory(t *testing.T) {
	fx := newFixture()

	_, err := fx.svc.Upload(context.Background(), "owner", []UploadInput{pdfInput("a.pdf", "x")}, UploadOptions{Category: "selfie"})
	code, ok := domain.ValidationCode(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidCategory, code)
}

func TestUploadDescriptionTooLong(t *testing.T) {
	fx := newFixture()

	_, err := fx.svc.Upload(context.Background(), "owner", []UploadInput{pdfInput("a.pdf", "x")}, UploadOptions{
		Description: strings.Repeat("a", domain.MaxDescriptionLength+1),
	})
	code, ok := domain.ValidationCode(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeDescriptionTooLong, code)
}

func TestUploadCompensatesBlobOnRecordFailure(t *testing.T) {
	fx := newFixture()
	fx.repo.createErr = errors.New("pg down")

	report, err := fx.svc.Upload(context.Background(), "owner", []UploadInput{pdfInput("a.pdf", "x")}, UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Succeeded)
	require.Len(t, report.Rejected, 1)

	// the committed blob was deleted again
	assert.Empty(t, fx.store.objects)
	require.Len(t, fx.store.deleted, 1)
}

func TestGetUniformNotFound(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", nil)

	_, err := fx.svc.Get(context.Background(), Actor{ID: "stranger"}, rec.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = fx.svc.Get(context.Background(), Actor{ID: "owner"}, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := fx.svc.Get(context.Background(), Actor{ID: "owner"}, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}

func TestUpdateMetadata(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", nil)

	desc := "updated"
	public := true
	got, err := fx.svc.Update(context.Background(), Actor{ID: "owner"}, rec.ID, domain.FileRecordPatch{
		Description: &desc,
		IsPublic:    &public,
		Tags:        []string{"New", "new"},
	})
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Description)
	assert.True(t, got.IsPublic)
	assert.Equal(t, []string{"new"}, got.Tags)

	_, err = fx.svc.Update(context.Background(), Actor{ID: "friend"}, rec.ID, domain.FileRecordPatch{Description: &desc})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bad := domain.FileCategory("selfie")
	_, err = fx.svc.Update(context.Background(), Actor{ID: "owner"}, rec.ID, domain.FileRecordPatch{Category: &bad})
	code, ok := domain.ValidationCode(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidCategory, code)
}

func TestDownloadCompleteIncrementsOnce(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", nil)

	stream, err := fx.svc.OpenDownload(context.Background(), Actor{ID: "owner"}, rec.ID)
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	data, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fake", string(data))

	require.NoError(t, stream.Complete(context.Background()))
	require.NoError(t, stream.Complete(context.Background()))
	assert.Equal(t, 1, fx.repo.downloads[rec.ID])
}

func TestInterruptedDownloadDoesNotCount(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", nil)

	stream, err := fx.svc.OpenDownload(context.Background(), Actor{ID: "owner"}, rec.ID)
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	assert.Equal(t, 0, fx.repo.downloads[rec.ID])
}

func TestDownloadSharedAccess(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", func(r *domain.FileRecord) {
		r.SharedWith = []domain.ShareEntry{{UserID: "friend", Permission: domain.PermissionDownload}}
	})

	stream, err := fx.svc.OpenDownload(context.Background(), Actor{ID: "friend"}, rec.ID)
	require.NoError(t, err)
	_ = stream.Close()

	_, err = fx.svc.OpenDownload(context.Background(), Actor{ID: "stranger"}, rec.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDownloadMissingBlobFlagsRecord(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", nil)
	delete(fx.store.objects, rec.BinaryObjectID)

	_, err := fx.svc.OpenDownload(context.Background(), Actor{ID: "owner"}, rec.ID)
	assert.ErrorIs(t, err, domain.ErrBlobMissing)
	assert.Equal(t, domain.StatusFailed, fx.repo.statuses[rec.ID])
}

func TestDownloadUsesObjectSizeOnDrift(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", nil)
	fx.store.objects[rec.BinaryObjectID] = []byte("replaced with a longer payload")

	stream, err := fx.svc.OpenDownload(context.Background(), Actor{ID: "owner"}, rec.ID)
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	assert.EqualValues(t, len("replaced with a longer payload"), stream.Record.SizeBytes)
}

func TestPreviewGatedByContentType(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", func(r *domain.FileRecord) {
		r.ContentType = "application/msword"
	})

	_, err := fx.svc.OpenPreview(context.Background(), Actor{ID: "owner"}, rec.ID)
	assert.ErrorIs(t, err, domain.ErrPreviewNotAllowed)

	pdfRec := fx.seedFile(t, "owner", nil)
	stream, err := fx.svc.OpenPreview(context.Background(), Actor{ID: "owner"}, pdfRec.ID)
	require.NoError(t, err)
	_ = stream.Close()
	// previews never move the download counter
	assert.Equal(t, 0, fx.repo.downloads[pdfRec.ID])
}

func TestShare(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", nil)

	err := fx.svc.Share(context.Background(), Actor{ID: "owner"}, rec.ID, "friend", domain.PermissionView)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionView, fx.repo.shares[shareKey{rec.ID, "friend"}])

	// re-sharing upgrades the permission instead of duplicating the entry
	err = fx.svc.Share(context.Background(), Actor{ID: "owner"}, rec.ID, "friend", domain.PermissionDownload)
	require.NoError(t, err)
	assert.Len(t, fx.repo.shares, 1)
	assert.Equal(t, domain.PermissionDownload, fx.repo.shares[shareKey{rec.ID, "friend"}])

	require.Len(t, fx.events.events, 2)
	assert.Equal(t, []string{"friend"}, fx.events.events[0].RecipientIDs)
}

func TestShareRejections(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", nil)

	err := fx.svc.Share(context.Background(), Actor{ID: "owner"}, rec.ID, "owner", domain.PermissionView)
	_, ok := domain.ValidationCode(err)
	assert.True(t, ok)

	err = fx.svc.Share(context.Background(), Actor{ID: "owner"}, rec.ID, "friend", domain.SharePermission("admin"))
	_, ok = domain.ValidationCode(err)
	assert.True(t, ok)

	err = fx.svc.Share(context.Background(), Actor{ID: "owner"}, rec.ID, "nobody", domain.PermissionView)
	assert.ErrorIs(t, err, domain.ErrShareTargetMissing)

	err = fx.svc.Share(context.Background(), Actor{ID: "friend"}, rec.ID, "friend", domain.PermissionView)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Empty(t, fx.repo.shares)
}

func TestShareResolveOutageIsNotMissingTarget(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", nil)
	fx.users.resolveErr = errors.New("userhub status 502 endpoint=test")

	err := fx.svc.Share(context.Background(), Actor{ID: "owner"}, rec.ID, "friend", domain.PermissionView)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrShareTargetMissing)
	assert.Empty(t, fx.repo.shares)
}

func TestUnshare(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", nil)
	fx.repo.shares[shareKey{rec.ID, "friend"}] = domain.PermissionView

	require.NoError(t, fx.svc.Unshare(context.Background(), Actor{ID: "owner"}, rec.ID, "friend"))
	assert.Empty(t, fx.repo.shares)

	err := fx.svc.Unshare(context.Background(), Actor{ID: "friend"}, rec.ID, "friend")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteCascade(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", func(r *domain.FileRecord) {
		r.Category = domain.CategoryResume
	})

	require.NoError(t, fx.svc.Delete(context.Background(), Actor{ID: "owner"}, rec.ID))

	assert.Empty(t, fx.store.objects)
	assert.Empty(t, fx.repo.records)
	assert.Equal(t, []string{rec.BinaryObjectID}, fx.users.removed)
	assert.Equal(t, []string{EventFileDeleted}, fx.events.kinds())
}

func TestDeleteRemovesStaleProfileReference(t *testing.T) {
	fx := newFixture()

	report, err := fx.svc.Upload(context.Background(), "owner", []UploadInput{pdfInput("resume.pdf", "data")}, UploadOptions{Category: domain.CategoryResume})
	require.NoError(t, err)
	rec := report.Accepted[0]
	require.Len(t, fx.users.addedDocs, 1)

	// recategorizing does not touch the profile entry, deletion still must
	other := domain.CategoryOther
	_, err = fx.svc.Update(context.Background(), Actor{ID: "owner"}, rec.ID, domain.FileRecordPatch{Category: &other})
	require.NoError(t, err)

	require.NoError(t, fx.svc.Delete(context.Background(), Actor{ID: "owner"}, rec.ID))
	assert.Equal(t, []string{rec.BinaryObjectID}, fx.users.removed)
}

func TestDeleteBlobFailureAbortsCascade(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", nil)
	fx.store.delErr = errors.New("minio down")

	err := fx.svc.Delete(context.Background(), Actor{ID: "owner"}, rec.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrConsistency)

	// the record survives, nothing was half-deleted
	_, ok := fx.repo.records[rec.ID]
	assert.True(t, ok)
}

func TestDeleteRecordFailureIsConsistencyError(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", nil)
	fx.repo.deleteErr = errors.New("pg down")

	err := fx.svc.Delete(context.Background(), Actor{ID: "owner"}, rec.ID)
	assert.ErrorIs(t, err, domain.ErrConsistency)
}

func TestDeleteProfileCleanupFailureIsConsistencyError(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", func(r *domain.FileRecord) {
		r.Category = domain.CategoryResume
	})
	fx.users.removeErr = errors.New("userhub down")

	err := fx.svc.Delete(context.Background(), Actor{ID: "owner"}, rec.ID)
	assert.ErrorIs(t, err, domain.ErrConsistency)
}

func TestDeleteDeniedForNonOwner(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", func(r *domain.FileRecord) {
		r.SharedWith = []domain.ShareEntry{{UserID: "friend", Permission: domain.PermissionDownload}}
	})

	err := fx.svc.Delete(context.Background(), Actor{ID: "friend"}, rec.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, ok := fx.repo.records[rec.ID]
	assert.True(t, ok)
}

func TestAnalyzeSuccess(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", func(r *domain.FileRecord) {
		r.ContentType = "text/plain"
	})

	analysis, degraded, err := fx.svc.Analyze(context.Background(), Actor{ID: "owner"}, rec.ID)
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, "solid resume", analysis.Summary)
	assert.Equal(t, domain.StatusCompleted, fx.repo.statuses[rec.ID])
	assert.NotEmpty(t, fx.repo.analyses[rec.ID])
	assert.Equal(t, []string{EventFileAnalyzed}, fx.events.kinds())
}

func TestAnalyzeProviderFailureDegradesSoftly(t *testing.T) {
	fx := newFixture()
	fx.analyzer.err = domain.ErrUpstream
	rec := fx.seedFile(t, "owner", nil)

	analysis, degraded, err := fx.svc.Analyze(context.Background(), Actor{ID: "owner"}, rec.ID)
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Equal(t, domain.FallbackAnalysis("").Summary, analysis.Summary)
	assert.Equal(t, domain.StatusFailed, fx.repo.statuses[rec.ID])
	assert.Empty(t, fx.events.kinds())
}

func TestAnalyzeInterviewerPrivilege(t *testing.T) {
	fx := newFixture()
	rec := fx.seedFile(t, "owner", func(r *domain.FileRecord) {
		r.ContentType = "text/plain"
	})

	_, _, err := fx.svc.Analyze(context.Background(), Actor{ID: "reviewer", Role: string(userdomain.RoleInterviewer)}, rec.ID)
	require.NoError(t, err)

	_, _, err = fx.svc.Analyze(context.Background(), Actor{ID: "stranger", Role: string(userdomain.RoleInterviewee)}, rec.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnalyzeWithoutProvider(t *testing.T) {
	fx := newFixture()
	fx.svc = NewFileService(fx.store, fx.repo, fx.users, nil, fx.events, nil, domain.DefaultUploadLimits())
	rec := fx.seedFile(t, "owner", nil)

	_, _, err := fx.svc.Analyze(context.Background(), Actor{ID: "owner"}, rec.ID)
	require.Error(t, err)
}

func TestStatsScoping(t *testing.T) {
	fx := newFixture()
	fx.repo.stats = []domain.CategoryStats{{Category: domain.CategoryResume, Count: 2, TotalSizeBytes: 100}}

	stats, err := fx.svc.Stats(context.Background(), Actor{ID: "owner", Role: "interviewee"}, true)
	require.NoError(t, err)
	assert.Equal(t, "owner", fx.repo.statsFor)
	assert.Len(t, stats, 1)

	_, err = fx.svc.Stats(context.Background(), Actor{ID: "root", Role: string(userdomain.RoleAdmin)}, true)
	require.NoError(t, err)
	assert.Equal(t, "", fx.repo.statsFor)
}

func TestListValidation(t *testing.T) {
	fx := newFixture()
	fx.seedFile(t, "owner", nil)

	items, total, err := fx.svc.List(context.Background(), "owner", "", 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, items, 1)

	_, _, err = fx.svc.List(context.Background(), "owner", "selfie", 1, 10)
	code, ok := domain.ValidationCode(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidCategory, code)
}
