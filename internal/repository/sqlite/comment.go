package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/intake/internal/errs"
	"github.com/garnizeh/intake/pkg/models"
)

// DefaultCommentAuthor is stored when a comment carries no author.
const DefaultCommentAuthor = "Admin"

func (r *SQLiteRepo) CreateComment(ctx context.Context, c *models.Comment) (int64, error) {
	if c == nil {
		return 0, fmt.Errorf("comment is nil")
	}
	if c.AuthorName == "" {
		c.AuthorName = DefaultCommentAuthor
	}

	ts := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO project_comments (project_id, comment_text, author_name, created)
		VALUES (?, ?, ?, ?)`, c.ProjectID, c.CommentText, c.AuthorName, ts)
	if err != nil {
		if isForeignKeyErr(err) {
			return 0, errs.NotFound("project", c.ProjectID)
		}
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	c.ID = id
	c.CreatedAt = fromMillis(ts)
	return id, nil
}

func (r *SQLiteRepo) GetComment(ctx context.Context, id int64) (*models.Comment, error) {
	var (
		c       models.Comment
		created int64
	)
	err := r.conn.QueryRow(ctx, `SELECT id, project_id, comment_text, author_name, created
		FROM project_comments WHERE id = ?`, id).Scan(&c.ID, &c.ProjectID, &c.CommentText, &c.AuthorName, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

// ListComments returns comments oldest first. A zero projectID lists all.
func (r *SQLiteRepo) ListComments(ctx context.Context, projectID int64) ([]models.Comment, error) {
	q := `SELECT id, project_id, comment_text, author_name, created FROM project_comments`
	var args []any
	if projectID != 0 {
		q += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	q += ` ORDER BY created, id`

	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		var (
			c       models.Comment
			created int64
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.CommentText, &c.AuthorName, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = fromMillis(created)
		out = append(out, c)
	}
	return out, rows.Err()
}
