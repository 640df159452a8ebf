package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"interview_server/server/userhub/domain"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `user_id, email, name, role, password_hash, google_id, avatar_key, avatar_thumb_key,
	headline, bio, resume_documents, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users(email, name, role, password_hash, google_id)
		VALUES($1, $2, $3, $4, $5)
		RETURNING user_id, created_at, updated_at
	`, user.Email, user.Name, user.Role, user.PasswordHash, user.GoogleID).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.User{}, domain.ErrEmailTaken
		}
		return domain.User{}, err
	}
	user.ResumeDocuments = []domain.ResumeDocument{}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `WHERE user_id=$1`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, `WHERE email=$1`, email)
}

func (r *UserRepository) GetByGoogleID(ctx context.Context, googleID string) (domain.User, error) {
	return r.getOne(ctx, `WHERE google_id=$1`, googleID)
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg any) (domain.User, error) {
	var user domain.User
	var rawDocs []byte
	err := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users `+where, arg).Scan(
		&user.ID, &user.Email, &user.Name, &user.Role, &user.PasswordHash, &user.GoogleID,
		&user.AvatarKey, &user.AvatarThumbKey, &user.Headline, &user.Bio, &rawDocs,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}

	user.ResumeDocuments = []domain.ResumeDocument{}
	if len(rawDocs) > 0 {
		if err := json.Unmarshal(rawDocs, &user.ResumeDocuments); err != nil {
			return domain.User{}, fmt.Errorf("decode resume documents for user %s: %w", user.ID, err)
		}
	}
	return user, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) error {
	sets := []string{"updated_at=NOW()"}
	args := []any{}
	idx := 1

	if patch.Name != nil {
		sets = append(sets, fmt.Sprintf("name=$%d", idx))
		args = append(args, *patch.Name)
		idx++
	}
	if patch.Headline != nil {
		sets = append(sets, fmt.Sprintf("headline=$%d", idx))
		args = append(args, *patch.Headline)
		idx++
	}
	if patch.Bio != nil {
		sets = append(sets, fmt.Sprintf("bio=$%d", idx))
		args = append(args, *patch.Bio)
		idx++
	}

	args = append(args, id)
	cmd, err := r.pool.Exec(ctx, fmt.Sprintf(`UPDATE users SET %s WHERE user_id=$%d`, strings.Join(sets, ", "), idx), args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SetGoogleID(ctx context.Context, id, googleID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET google_id=$1, updated_at=NOW() WHERE user_id=$2`, googleID, id)
	return err
}

func (r *UserRepository) SetAvatar(ctx context.Context, id, avatarKey, thumbKey string) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE users SET avatar_key=$1, avatar_thumb_key=$2, updated_at=NOW() WHERE user_id=$3
	`, avatarKey, thumbKey, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// AddResumeDocument appends to the denormalized jsonb list in one statement
// so concurrent uploads do not clobber each other's entries.
func (r *UserRepository) AddResumeDocument(ctx context.Context, userID string, doc domain.ResumeDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx, `
		UPDATE users
		SET resume_documents = COALESCE(resume_documents, '[]'::jsonb) || $1::jsonb, updated_at=NOW()
		WHERE user_id=$2
	`, raw, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) RemoveResumeDocument(ctx context.Context, userID, binaryObjectID string) error {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE users
		SET resume_documents = COALESCE((
			SELECT jsonb_agg(doc)
			FROM jsonb_array_elements(resume_documents) AS doc
			WHERE doc->>'binary_object_id' <> $1
		), '[]'::jsonb), updated_at=NOW()
		WHERE user_id=$2
	`, binaryObjectID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
