package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/garnizeh/intake/internal/errs"
	"github.com/garnizeh/intake/pkg/models"
)

func (r *SQLiteRepo) CreateReviewer(ctx context.Context, rv *models.Reviewer) (int64, error) {
	if rv == nil {
		return 0, fmt.Errorf("reviewer is nil")
	}

	ts := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO reviewers (username, email, password_hash, is_superuser, created)
		VALUES (?, ?, ?, ?, ?)`, rv.Username, rv.Email, rv.PasswordHash, rv.IsSuperuser, ts)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, fmt.Errorf("%w: reviewer %q already exists", errs.ErrConflict, rv.Username)
		}
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	rv.ID = id
	rv.CreatedAt = fromMillis(ts)
	return id, nil
}

func (r *SQLiteRepo) GetReviewer(ctx context.Context, id int64) (*models.Reviewer, error) {
	return r.getReviewer(ctx, `id = ?`, id)
}

func (r *SQLiteRepo) GetReviewerByUsername(ctx context.Context, username string) (*models.Reviewer, error) {
	return r.getReviewer(ctx, `username = ?`, username)
}

func (r *SQLiteRepo) getReviewer(ctx context.Context, cond string, arg any) (*models.Reviewer, error) {
	var (
		rv      models.Reviewer
		created int64
	)
	err := r.conn.QueryRow(ctx, `SELECT id, username, email, password_hash, is_superuser, created
		FROM reviewers WHERE `+cond, arg).Scan(&rv.ID, &rv.Username, &rv.Email, &rv.PasswordHash, &rv.IsSuperuser, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rv.CreatedAt = fromMillis(created)
	return &rv, nil
}
