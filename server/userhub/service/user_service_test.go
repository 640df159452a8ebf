package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"interview_server/server/userhub/domain"
)

type fakeUserRepo struct {
	byID      map[string]domain.User
	nextID    int
	googleErr error
	addedDocs map[string][]domain.ResumeDocument
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]domain.User{}, addedDocs: map[string][]domain.ResumeDocument{}}
}

func (f *fakeUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	for _, existing := range f.byID {
		if existing.Email == user.Email {
			return domain.User{}, domain.ErrEmailTaken
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	f.byID[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	for _, user := range f.byID {
		if user.Email == email {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (f *fakeUserRepo) GetByGoogleID(_ context.Context, googleID string) (domain.User, error) {
	if googleID == "" {
		return domain.User{}, domain.ErrUserNotFound
	}
	for _, user := range f.byID {
		if user.GoogleID == googleID {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, id string, patch domain.ProfilePatch) error {
	user, ok := f.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.Headline != nil {
		user.Headline = *patch.Headline
	}
	if patch.Bio != nil {
		user.Bio = *patch.Bio
	}
	f.byID[id] = user
	return nil
}

func (f *fakeUserRepo) SetGoogleID(_ context.Context, id, googleID string) error {
	if f.googleErr != nil {
		return f.googleErr
	}
	user, ok := f.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.GoogleID = googleID
	f.byID[id] = user
	return nil
}

func (f *fakeUserRepo) SetAvatar(_ context.Context, id, avatarKey, thumbKey string) error {
	user, ok := f.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.AvatarKey = avatarKey
	user.AvatarThumbKey = thumbKey
	f.byID[id] = user
	return nil
}

func (f *fakeUserRepo) AddResumeDocument(_ context.Context, userID string, doc domain.ResumeDocument) error {
	if _, ok := f.byID[userID]; !ok {
		return domain.ErrUserNotFound
	}
	f.addedDocs[userID] = append(f.addedDocs[userID], doc)
	return nil
}

func (f *fakeUserRepo) RemoveResumeDocument(_ context.Context, userID, binaryObjectID string) error {
	docs := f.addedDocs[userID]
	kept := docs[:0]
	for _, doc := range docs {
		if doc.BinaryObjectID != binaryObjectID {
			kept = append(kept, doc)
		}
	}
	f.addedDocs[userID] = kept
	return nil
}

type fakeGoogle struct {
	user GoogleUser
	err  error
}

func (f *fakeGoogle) Exchange(_ context.Context, _ string) (GoogleUser, error) {
	return f.user, f.err
}

func TestRegister(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewUserService(repo, nil, nil, "")

	user, err := svc.Register(context.Background(), " Alice@Example.COM ", "Alice", "secret-password", "")
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, domain.RoleInterviewee, user.Role)
	assert.Empty(t, user.PasswordHash)

	stored := repo.byID[user.ID]
	require.NotEmpty(t, stored.PasswordHash)
	assert.NotEqual(t, "secret-password", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret-password")))
}

func TestRegisterRejections(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewUserService(repo, nil, nil, "")

	_, err := svc.Register(context.Background(), "not-an-email", "Bob", "secret-password", "")
	assert.Error(t, err)

	_, err = svc.Register(context.Background(), "bob@example.com", "", "secret-password", "")
	assert.Error(t, err)

	_, err = svc.Register(context.Background(), "bob@example.com", "Bob", "short", "")
	assert.Error(t, err)

	_, err = svc.Register(context.Background(), "bob@example.com", "Bob", "secret-password", domain.RoleAdmin)
	assert.Error(t, err)

	_, err = svc.Register(context.Background(), "bob@example.com", "Bob", "secret-password", "wizard")
	assert.Error(t, err)

	_, err = svc.Register(context.Background(), "bob@example.com", "Bob", "secret-password", domain.RoleInterviewer)
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), "bob@example.com", "Bob2", "secret-password", "")
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestAuthenticate(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewUserService(repo, nil, nil, "")

	created, err := svc.Register(context.Background(), "carol@example.com", "Carol", "correct-horse", "")
	require.NoError(t, err)

	user, err := svc.Authenticate(context.Background(), "carol@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
	assert.Empty(t, user.PasswordHash)

	_, err = svc.Authenticate(context.Background(), "carol@example.com", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthenticateGoogleOnlyAccountHasNoPassword(t *testing.T) {
	repo := newFakeUserRepo()
	google := &fakeGoogle{user: GoogleUser{Sub: "g-1", Email: "dave@example.com", Name: "Dave"}}
	svc := NewUserService(repo, google, nil, "")

	_, err := svc.LoginWithGoogle(context.Background(), "code")
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), "dave@example.com", "anything")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLoginWithGoogleProvisionsOnce(t *testing.T) {
	repo := newFakeUserRepo()
	google := &fakeGoogle{user: GoogleUser{Sub: "g-2", Email: "erin@example.com", Name: "Erin"}}
	svc := NewUserService(repo, google, nil, "")

	first, err := svc.LoginWithGoogle(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleInterviewee, first.Role)

	second, err := svc.LoginWithGoogle(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.byID, 1)
}

func TestLoginWithGoogleLinksExistingEmail(t *testing.T) {
	repo := newFakeUserRepo()
	google := &fakeGoogle{user: GoogleUser{Sub: "g-3", Email: "frank@example.com", Name: "Frank"}}
	svc := NewUserService(repo, google, nil, "")

	registered, err := svc.Register(context.Background(), "frank@example.com", "Frank", "secret-password", "")
	require.NoError(t, err)

	linked, err := svc.LoginWithGoogle(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, linked.ID)
	assert.Equal(t, "g-3", repo.byID[registered.ID].GoogleID)
	assert.Len(t, repo.byID, 1)
}

func TestLoginWithGoogleExchangeFailure(t *testing.T) {
	repo := newFakeUserRepo()
	google := &fakeGoogle{err: errors.New("invalid code")}
	svc := NewUserService(repo, google, nil, "")

	_, err := svc.LoginWithGoogle(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestLoginWithGoogleUnconfigured(t *testing.T) {
	svc := NewUserService(newFakeUserRepo(), nil, nil, "")
	_, err := svc.LoginWithGoogle(context.Background(), "code")
	assert.Error(t, err)
}

func TestUpdateProfile(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewUserService(repo, nil, nil, "")

	created, err := svc.Register(context.Background(), "gina@example.com", "Gina", "secret-password", "")
	require.NoError(t, err)

	headline := "Backend engineer"
	user, err := svc.UpdateProfile(context.Background(), created.ID, domain.ProfilePatch{Headline: &headline})
	require.NoError(t, err)
	assert.Equal(t, "Backend engineer", user.Headline)
	assert.Equal(t, "Gina", user.Name)

	_, err = svc.UpdateProfile(context.Background(), "missing", domain.ProfilePatch{Headline: &headline})
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUploadAvatarRejectsNonImage(t *testing.T) {
	svc := NewUserService(newFakeUserRepo(), nil, nil, "")

	_, err := svc.UploadAvatar(context.Background(), "user-1", []byte("plain text"), "text/plain")
	assert.ErrorIs(t, err, domain.ErrNotAnImage)

	// content type lies, bytes are not decodable as an image
	_, err = svc.UploadAvatar(context.Background(), "user-1", []byte("not a png"), "image/png")
	assert.ErrorIs(t, err, domain.ErrNotAnImage)
}

func TestResumeDocumentPassthrough(t *testing.T) {
	repo := newFakeUserRepo()
	svc := NewUserService(repo, nil, nil, "")

	created, err := svc.Register(context.Background(), "hank@example.com", "Hank", "secret-password", "")
	require.NoError(t, err)

	doc := domain.ResumeDocument{Name: "resume.pdf", BinaryObjectID: strings.Repeat("a", 24)}
	require.NoError(t, svc.AddResumeDocument(context.Background(), created.ID, doc))
	require.Len(t, repo.addedDocs[created.ID], 1)

	require.NoError(t, svc.RemoveResumeDocument(context.Background(), created.ID, doc.BinaryObjectID))
	assert.Empty(t, repo.addedDocs[created.ID])
}
