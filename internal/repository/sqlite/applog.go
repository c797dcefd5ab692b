package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garnizeh/intake/pkg/models"
	"github.com/garnizeh/intake/pkg/repository"
)

func (r *SQLiteRepo) CreateLog(ctx context.Context, l *models.ApplicationLog) (int64, error) {
	if l == nil {
		return 0, fmt.Errorf("log entry is nil")
	}

	var actor sql.NullString
	if l.InteractedBy != nil {
		actor = sql.NullString{String: *l.InteractedBy, Valid: true}
	}

	ts := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO application_logs (level, logger_name, message, interacted_by, created)
		VALUES (?, ?, ?, ?, ?)`, string(l.Level), l.LoggerName, l.Message, actor, ts)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	l.ID = id
	l.CreatedAt = fromMillis(ts)
	return id, nil
}

// ListLogs returns audit entries newest first.
func (r *SQLiteRepo) ListLogs(ctx context.Context, f repository.LogFilter) ([]models.ApplicationLog, error) {
	where, args := logWhere(f)
	q := `SELECT id, level, logger_name, message, interacted_by, created FROM application_logs` + where +
		` ORDER BY created DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, f.Page.Limit(), f.Page.Offset())

	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var out []models.ApplicationLog
	for rows.Next() {
		var (
			l       models.ApplicationLog
			level   string
			actor   sql.NullString
			created int64
		)
		if err := rows.Scan(&l.ID, &level, &l.LoggerName, &l.Message, &actor, &created); err != nil {
			return nil, err
		}
		l.Level = models.LogLevel(level)
		if actor.Valid {
			s := actor.String
			l.InteractedBy = &s
		}
		l.CreatedAt = fromMillis(created)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) CountLogs(ctx context.Context, f repository.LogFilter) (int64, error) {
	where, args := logWhere(f)
	var n int64
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM application_logs`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count logs: %w", err)
	}
	return n, nil
}

func logWhere(f repository.LogFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Level != "" {
		conds = append(conds, "UPPER(level) = UPPER(?)")
		args = append(args, f.Level)
	}
	if f.Actor != "" {
		conds = append(conds, "interacted_by = ?")
		args = append(args, f.Actor)
	}
	if f.Search != "" {
		conds = append(conds, `(message LIKE ? ESCAPE '\' OR logger_name LIKE ? ESCAPE '\')`)
		pat := contains(f.Search)
		args = append(args, pat, pat)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
