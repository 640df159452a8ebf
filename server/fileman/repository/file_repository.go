package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"interview_server/server/fileman/domain"
)

type FileRepository struct {
	pool *pgxpool.Pool
}

func NewFileRepository(pool *pgxpool.Pool) *FileRepository {
	return &FileRepository{pool: pool}
}

const fileColumns = `id, binary_object_id, uploaded_by, original_name, stored_filename, content_type,
	size_bytes, category, description, processed_status, analysis, is_public,
	download_count, last_downloaded, tags, created_at, updated_at`

func (r *FileRepository) Create(ctx context.Context, item domain.FileRecord) (domain.FileRecord, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO files(id, binary_object_id, uploaded_by, original_name, stored_filename,
			content_type, size_bytes, category, description, processed_status, is_public, tags)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, item.ID, item.BinaryObjectID, item.UploadedBy, item.OriginalName, item.StoredFilename,
		item.ContentType, item.SizeBytes, item.Category, item.Description, item.ProcessedStatus,
		item.IsPublic, item.Tags).Scan(&item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (r *FileRepository) GetByID(ctx context.Context, id string) (domain.FileRecord, error) {
	var item domain.FileRecord
	err := r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id=$1`, id).Scan(
		&item.ID, &item.BinaryObjectID, &item.UploadedBy, &item.OriginalName, &item.StoredFilename,
		&item.ContentType, &item.SizeBytes, &item.Category, &item.Description, &item.ProcessedStatus,
		&item.Analysis, &item.IsPublic, &item.DownloadCount, &item.LastDownloaded, &item.Tags,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FileRecord{}, domain.ErrNotFound
		}
		return domain.FileRecord{}, err
	}

	shares, err := r.listShares(ctx, id)
	if err != nil {
		return domain.FileRecord{}, err
	}
	item.SharedWith = shares
	return item, nil
}

func (r *FileRepository) ListByOwner(ctx context.Context, ownerID string, category domain.FileCategory, page, limit int) ([]domain.FileRecord, int64, error) {
	where := `WHERE uploaded_by=$1`
	args := []any{ownerID}
	if category != "" {
		where += ` AND category=$2`
		args = append(args, category)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM files `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	query := fmt.Sprintf(`SELECT `+fileColumns+` FROM files %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]domain.FileRecord, 0)
	for rows.Next() {
		var item domain.FileRecord
		if err := rows.Scan(
			&item.ID, &item.BinaryObjectID, &item.UploadedBy, &item.OriginalName, &item.StoredFilename,
			&item.ContentType, &item.SizeBytes, &item.Category, &item.Description, &item.ProcessedStatus,
			&item.Analysis, &item.IsPublic, &item.DownloadCount, &item.LastDownloaded, &item.Tags,
			&item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func (r *FileRepository) UpdateMetadata(ctx context.Context, id string, patch domain.FileRecordPatch) error {
	sets := []string{"updated_at=NOW()"}
	args := []any{}
	idx := 1

	if patch.Category != nil {
		sets = append(sets, fmt.Sprintf("category=$%d", idx))
		args = append(args, *patch.Category)
		idx++
	}
	if patch.Description != nil {
		sets = append(sets, fmt.Sprintf("description=$%d", idx))
		args = append(args, *patch.Description)
		idx++
	}
	if patch.Tags != nil {
		sets = append(sets, fmt.Sprintf("tags=$%d", idx))
		args = append(args, patch.Tags)
		idx++
	}
	if patch.IsPublic != nil {
		sets = append(sets, fmt.Sprintf("is_public=$%d", idx))
		args = append(args, *patch.IsPublic)
		idx++
	}

	args = append(args, id)
	cmd, err := r.pool.Exec(ctx, fmt.Sprintf(`UPDATE files SET %s WHERE id=$%d`, strings.Join(sets, ", "), idx), args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertShare is keyed by (file_id, user_id) so re-sharing the same user
// overwrites permission and timestamp instead of appending a duplicate, and
// concurrent shares never rewrite a whole list value.
func (r *FileRepository) UpsertShare(ctx context.Context, fileID, userID string, permission domain.SharePermission) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO file_shares(file_id, user_id, permission, shared_at)
		VALUES($1, $2, $3, NOW())
		ON CONFLICT (file_id, user_id)
		DO UPDATE SET permission=EXCLUDED.permission, shared_at=NOW()
	`, fileID, userID, permission)
	return err
}

func (r *FileRepository) RemoveShare(ctx context.Context, fileID, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM file_shares WHERE file_id=$1 AND user_id=$2`, fileID, userID)
	return err
}

// IncrementDownload is a single atomic increment so concurrent downloads do
// not lose counts. Callers invoke it only after the stream fully completed.
func (r *FileRepository) IncrementDownload(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE files SET download_count=download_count+1, last_downloaded=NOW(), updated_at=NOW()
		WHERE id=$1
	`, id)
	return err
}

func (r *FileRepository) SetStatus(ctx context.Context, id string, status domain.ProcessedStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE files SET processed_status=$1, updated_at=NOW() WHERE id=$2`, status, id)
	return err
}

func (r *FileRepository) SetAnalysis(ctx context.Context, id string, status domain.ProcessedStatus, analysis []byte) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE files SET processed_status=$1, analysis=$2, updated_at=NOW() WHERE id=$3
	`, status, analysis, id)
	return err
}

func (r *FileRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *FileRepository) StatsByOwner(ctx context.Context, ownerID string) ([]domain.CategoryStats, error) {
	query := `
		SELECT category, COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM files`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE uploaded_by=$1`
		args = append(args, ownerID)
	}
	query += ` GROUP BY category ORDER BY category`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.CategoryStats, 0)
	for rows.Next() {
		var item domain.CategoryStats
		if err := rows.Scan(&item.Category, &item.Count, &item.TotalSizeBytes); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *FileRepository) listShares(ctx context.Context, fileID string) ([]domain.ShareEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, permission, shared_at FROM file_shares WHERE file_id=$1 ORDER BY shared_at
	`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ShareEntry, 0)
	for rows.Next() {
		var item domain.ShareEntry
		if err := rows.Scan(&item.UserID, &item.Permission, &item.SharedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
