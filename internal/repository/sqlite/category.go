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

func (r *SQLiteRepo) CreateCategory(ctx context.Context, name string) (int64, error) {
	res, err := r.conn.Exec(ctx, `INSERT INTO categories (name) VALUES (?)`, name)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, fmt.Errorf("%w: category %q already exists", errs.ErrConflict, name)
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SQLiteRepo) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	err := r.conn.QueryRow(ctx, `SELECT id, name FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *SQLiteRepo) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCategory removes a category; projects referencing it keep existing
// with a NULL category (ON DELETE SET NULL).
func (r *SQLiteRepo) DeleteCategory(ctx context.Context, id int64) error {
	res, err := r.conn.Exec(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("category", id)
	}
	return nil
}
