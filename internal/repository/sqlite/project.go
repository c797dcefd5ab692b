package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/garnizeh/intake/pkg/models"
	"github.com/garnizeh/intake/pkg/repository"
	"github.com/shopspring/decimal"
)

const projectColumns = `p.id, p.title, p.description, p.budget_cents, p.deadline, p.start_date, p.end_date,
	p.sender_name, p.contact_email, p.category_id, c.name, p.status, p.priority,
	p.accepted_by, p.started_by, p.completed_by, p.created, p.updated`

const projectFrom = ` FROM projects p LEFT JOIN categories c ON c.id = p.category_id`

const priorityRank = `CASE p.priority WHEN 'LOW' THEN 1 WHEN 'MEDIUM' THEN 2 WHEN 'HIGH' THEN 3 WHEN 'URGENT' THEN 4 ELSE 0 END`

var orderColumns = map[string]string{
	"budget":     "p.budget_cents",
	"created_at": "p.created",
	"updated_at": "p.updated",
	"priority":   priorityRank,
}

var reviewerColumns = map[string]bool{
	"accepted_by":  true,
	"started_by":   true,
	"completed_by": true,
}

func (r *SQLiteRepo) CreateProject(ctx context.Context, p *models.Project) (int64, error) {
	if p == nil {
		return 0, fmt.Errorf("project is nil")
	}

	ts := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO projects (title, description, budget_cents, deadline, start_date, end_date,
		sender_name, contact_email, category_id, status, priority, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Title, p.Description, toCents(p.Budget), p.Deadline.String(), dateValue(p.StartDate), dateValue(p.EndDate),
		p.SenderName, p.ContactEmail, nullInt(p.CategoryID), string(p.Status), string(p.Priority), ts, ts)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	p.ID = id
	p.CreatedAt = fromMillis(ts)
	p.UpdatedAt = p.CreatedAt
	return id, nil
}

func (r *SQLiteRepo) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+projectColumns+projectFrom+` WHERE p.id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *SQLiteRepo) ListProjects(ctx context.Context, f repository.ProjectFilter) ([]models.Project, error) {
	where, args := projectWhere(f)
	q := `SELECT ` + projectColumns + projectFrom + where + projectOrder(f.Ordering) + ` LIMIT ? OFFSET ?`
	args = append(args, f.Page.Limit(), f.Page.Offset())

	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) CountProjects(ctx context.Context, f repository.ProjectFilter) (int64, error) {
	where, args := projectWhere(f)
	var n int64
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*)`+projectFrom+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepo) TransitionStatus(ctx context.Context, id int64, from []models.Status, to models.Status, actor repository.Actor) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition needs at least one source status")
	}

	set := `status = ?, updated = ?`
	args := []any{string(to), now()}
	if actor.Field != "" {
		if !reviewerColumns[actor.Field] {
			return false, fmt.Errorf("unknown reviewer column %q", actor.Field)
		}
		set += ", " + actor.Field + " = ?"
		args = append(args, actor.ReviewerID)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	args = append(args, id)
	for _, s := range from {
		args = append(args, string(s))
	}

	res, err := r.conn.Exec(ctx, `UPDATE projects SET `+set+` WHERE id = ? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return false, fmt.Errorf("transition project %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func projectWhere(f repository.ProjectFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "p.status = ?")
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		conds = append(conds, "p.priority = ?")
		args = append(args, string(f.Priority))
	}
	if f.AcceptedBy != nil {
		conds = append(conds, "p.accepted_by = ?")
		args = append(args, *f.AcceptedBy)
	}
	if f.StartedBy != nil {
		conds = append(conds, "p.started_by = ?")
		args = append(args, *f.StartedBy)
	}
	if f.CompletedBy != nil {
		conds = append(conds, "p.completed_by = ?")
		args = append(args, *f.CompletedBy)
	}
	if f.ReviewerID != nil {
		conds = append(conds, "(p.accepted_by = ? OR p.started_by = ? OR p.completed_by = ?)")
		args = append(args, *f.ReviewerID, *f.ReviewerID, *f.ReviewerID)
	}
	if f.CategoryName != "" {
		conds = append(conds, `c.name LIKE ? ESCAPE '\'`)
		args = append(args, contains(f.CategoryName))
	}
	if f.BudgetGTE != nil {
		conds = append(conds, "p.budget_cents >= ?")
		args = append(args, f.BudgetGTE.Shift(2).Ceil().IntPart())
	}
	if f.BudgetLTE != nil {
		conds = append(conds, "p.budget_cents <= ?")
		args = append(args, f.BudgetLTE.Shift(2).Floor().IntPart())
	}
	if f.Search != "" {
		conds = append(conds, `(p.title LIKE ? ESCAPE '\' OR p.description LIKE ? ESCAPE '\' OR p.sender_name LIKE ? ESCAPE '\')`)
		pat := contains(f.Search)
		args = append(args, pat, pat, pat)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func projectOrder(o repository.Ordering) string {
	col, ok := orderColumns[o.Field]
	if !ok {
		return " ORDER BY p.created DESC, p.id DESC"
	}
	dir := " ASC"
	if o.Desc {
		dir = " DESC"
	}
	return " ORDER BY " + col + dir + ", p.id" + dir
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (*models.Project, error) {
	var (
		p                              models.Project
		budget                         sql.NullInt64
		deadline                       string
		start, end                     sql.NullString
		categoryID                     sql.NullInt64
		categoryName                   sql.NullString
		status, priority               string
		acceptedBy, startedBy, complBy sql.NullInt64
		created, updated               int64
	)
	if err := s.Scan(&p.ID, &p.Title, &p.Description, &budget, &deadline, &start, &end,
		&p.SenderName, &p.ContactEmail, &categoryID, &categoryName, &status, &priority,
		&acceptedBy, &startedBy, &complBy, &created, &updated); err != nil {
		return nil, err
	}

	if budget.Valid {
		b := decimal.New(budget.Int64, -2)
		p.Budget = &b
	}
	d, err := models.ParseDate(deadline)
	if err != nil {
		return nil, fmt.Errorf("project %d deadline: %w", p.ID, err)
	}
	p.Deadline = d
	if p.StartDate, err = parseNullDate(start); err != nil {
		return nil, err
	}
	if p.EndDate, err = parseNullDate(end); err != nil {
		return nil, err
	}
	p.CategoryID = intPtr(categoryID)
	if categoryID.Valid && categoryName.Valid {
		p.Category = &models.Category{ID: categoryID.Int64, Name: categoryName.String}
	}
	p.Status = models.Status(status)
	p.Priority = models.Priority(priority)
	p.AcceptedBy = intPtr(acceptedBy)
	p.StartedBy = intPtr(startedBy)
	p.CompletedBy = intPtr(complBy)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

func parseNullDate(v sql.NullString) (*models.Date, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := models.ParseDate(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func dateValue(d *models.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func toCents(b *decimal.Decimal) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: b.Shift(2).Round(0).IntPart(), Valid: true}
}
