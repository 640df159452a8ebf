package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/minio/minio-go/v7"
	"golang.org/x/crypto/bcrypt"

	commonlog "interview_server/server/common/log"
	"interview_server/server/userhub/domain"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type userRepo interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (domain.User, error)
	UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) error
	SetGoogleID(ctx context.Context, id, googleID string) error
	SetAvatar(ctx context.Context, id, avatarKey, thumbKey string) error
	AddResumeDocument(ctx context.Context, userID string, doc domain.ResumeDocument) error
	RemoveResumeDocument(ctx context.Context, userID, binaryObjectID string) error
}

type GoogleExchanger interface {
	Exchange(ctx context.Context, code string) (GoogleUser, error)
}

type UserService struct {
	repo   userRepo
	google GoogleExchanger
	minio  *minio.Client
	bucket string
}

func NewUserService(repo userRepo, google GoogleExchanger, minioClient *minio.Client, bucket string) *UserService {
	return &UserService{repo: repo, google: google, minio: minioClient, bucket: bucket}
}

func (s *UserService) Register(ctx context.Context, email, name, password string, role domain.UserRole) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return domain.User{}, errors.New("email is invalid")
	}
	if strings.TrimSpace(name) == "" {
		return domain.User{}, errors.New("name is required")
	}
	if len(password) < 8 {
		return domain.User{}, errors.New("password must be at least 8 characters")
	}
	if role == "" {
		role = domain.RoleInterviewee
	}
	if !role.Valid() || role == domain.RoleAdmin {
		return domain.User{}, fmt.Errorf("role %q cannot be self-assigned", role)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.repo.Create(ctx, domain.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         role,
		PasswordHash: string(hashed),
	})
	if err != nil {
		return domain.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *UserService) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.User{}, domain.ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	user.PasswordHash = ""
	return user, nil
}

// LoginWithGoogle exchanges the authorization code and signs the user in,
// provisioning an account on first login. An existing email account gets the
// google id attached rather than a duplicate row.
func (s *UserService) LoginWithGoogle(ctx context.Context, code string) (domain.User, error) {
	if s.google == nil {
		return domain.User{}, errors.New("google sign-in is not configured")
	}
	googleUser, err := s.google.Exchange(ctx, code)
	if err != nil {
		return domain.User{}, err
	}

	user, err := s.repo.GetByGoogleID(ctx, googleUser.Sub)
	if err == nil {
		user.PasswordHash = ""
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, err
	}

	user, err = s.repo.GetByEmail(ctx, strings.ToLower(googleUser.Email))
	if err == nil {
		if linkErr := s.repo.SetGoogleID(ctx, user.ID, googleUser.Sub); linkErr != nil {
			return domain.User{}, linkErr
		}
		user.GoogleID = googleUser.Sub
		user.PasswordHash = ""
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, err
	}

	created, err := s.repo.Create(ctx, domain.User{
		Email:    strings.ToLower(googleUser.Email),
		Name:     googleUser.Name,
		Role:     domain.RoleInterviewee,
		GoogleID: googleUser.Sub,
	})
	if err != nil {
		return domain.User{}, err
	}
	created.PasswordHash = ""
	return created, nil
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (domain.User, error) {
	if err := s.repo.UpdateProfile(ctx, userID, patch); err != nil {
		return domain.User{}, err
	}
	return s.GetProfile(ctx, userID)
}

// UploadAvatar stores the original image plus a 320px JPEG thumbnail in the
// object store and records both keys on the user row.
func (s *UserService) UploadAvatar(ctx context.Context, userID string, data []byte, contentType string) (domain.User, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return domain.User{}, domain.ErrNotAnImage
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.User{}, domain.ErrNotAnImage
	}

	avatarKey := fmt.Sprintf("avatars/%s%s", userID, extensionForImage(contentType))
	reader := bytes.NewReader(data)
	if _, err := s.minio.PutObject(ctx, s.bucket, avatarKey, reader, int64(reader.Len()), minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return domain.User{}, fmt.Errorf("store avatar: %w", err)
	}

	thumb := imaging.Thumbnail(img, 320, 320, imaging.Lanczos)
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, thumb, imaging.JPEG); err != nil {
		return domain.User{}, fmt.Errorf("encode avatar thumbnail: %w", err)
	}
	thumbKey := fmt.Sprintf("avatars/%s_thumb.jpg", userID)
	thumbReader := bytes.NewReader(buf.Bytes())
	if _, err := s.minio.PutObject(ctx, s.bucket, thumbKey, thumbReader, int64(thumbReader.Len()), minio.PutObjectOptions{ContentType: "image/jpeg"}); err != nil {
		commonlog.Warnf("store avatar thumbnail for user %s: %v", userID, err)
		thumbKey = ""
	}

	if err := s.repo.SetAvatar(ctx, userID, avatarKey, thumbKey); err != nil {
		return domain.User{}, err
	}
	return s.GetProfile(ctx, userID)
}

func (s *UserService) ResolveUser(ctx context.Context, userID string) (domain.User, error) {
	return s.GetProfile(ctx, userID)
}

func (s *UserService) AddResumeDocument(ctx context.Context, userID string, doc domain.ResumeDocument) error {
	return s.repo.AddResumeDocument(ctx, userID, doc)
}

func (s *UserService) RemoveResumeDocument(ctx context.Context, userID, binaryObjectID string) error {
	return s.repo.RemoveResumeDocument(ctx, userID, binaryObjectID)
}

func extensionForImage(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
