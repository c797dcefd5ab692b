package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/intake/internal/errs"
	"github.com/garnizeh/intake/pkg/models"
)

const attachmentColumns = `id, project_id, storage_key, filename, content_type, size, uploaded`

func (r *SQLiteRepo) CreateAttachment(ctx context.Context, a *models.Attachment) (int64, error) {
	if a == nil {
		return 0, fmt.Errorf("attachment is nil")
	}

	ts := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO attachments (project_id, storage_key, filename, content_type, size, uploaded)
		VALUES (?, ?, ?, ?, ?, ?)`, a.ProjectID, a.StorageKey, a.Filename, a.ContentType, a.Size, ts)
	if err != nil {
		if isForeignKeyErr(err) {
			return 0, errs.NotFound("project", a.ProjectID)
		}
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	a.ID = id
	a.UploadedAt = fromMillis(ts)
	return id, nil
}

func (r *SQLiteRepo) GetAttachment(ctx context.Context, id int64) (*models.Attachment, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id)
	a, err := scanAttachment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// ListAttachments returns attachments of one project, or of all projects when
// projectID is zero.
func (r *SQLiteRepo) ListAttachments(ctx context.Context, projectID int64) ([]models.Attachment, error) {
	q := `SELECT ` + attachmentColumns + ` FROM attachments`
	var args []any
	if projectID != 0 {
		q += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	q += ` ORDER BY id`

	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []models.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) DeleteAttachment(ctx context.Context, id int64) error {
	res, err := r.conn.Exec(ctx, `DELETE FROM attachments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("attachment", id)
	}
	return nil
}

func scanAttachment(s scanner) (*models.Attachment, error) {
	var (
		a        models.Attachment
		uploaded int64
	)
	if err := s.Scan(&a.ID, &a.ProjectID, &a.StorageKey, &a.Filename, &a.ContentType, &a.Size, &uploaded); err != nil {
		return nil, err
	}
	a.UploadedAt = fromMillis(uploaded)
	return &a, nil
}
