// Package mock provides hand-written repository fakes for tests.
package mock

import (
	"context"
	"sync"

	"github.com/garnizeh/intake/pkg/models"
	"github.com/garnizeh/intake/pkg/repository"
)

// Test helpers and mocks
type Mocks struct {
	Reviewers *ReviewerRepo
	Logs      *LogRepo
}

func NewMocks() *Mocks {
	return &Mocks{
		Reviewers: &ReviewerRepo{},
		Logs:      &LogRepo{},
	}
}

// ReviewerRepo stores reviewers in memory.
type ReviewerRepo struct {
	mu        sync.Mutex
	Stored    []models.Reviewer
	CreateErr error
	GetErr    error
}

var _ repository.ReviewerRepo = (*ReviewerRepo)(nil)

func (m *ReviewerRepo) CreateReviewer(ctx context.Context, r *models.Reviewer) (int64, error) {
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = int64(len(m.Stored) + 1)
	m.Stored = append(m.Stored, *r)
	return r.ID, nil
}

func (m *ReviewerRepo) GetReviewer(ctx context.Context, id int64) (*models.Reviewer, error) {
	return m.find(func(r models.Reviewer) bool { return r.ID == id })
}

func (m *ReviewerRepo) GetReviewerByUsername(ctx context.Context, username string) (*models.Reviewer, error) {
	return m.find(func(r models.Reviewer) bool { return r.Username == username })
}

func (m *ReviewerRepo) find(match func(models.Reviewer) bool) (*models.Reviewer, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Stored {
		if match(r) {
			c := r
			return &c, nil
		}
	}
	return nil, nil
}

// LogRepo captures audit rows.
type LogRepo struct {
	mu        sync.Mutex
	Stored    []models.ApplicationLog
	CreateErr error
}

var _ repository.LogRepo = (*LogRepo)(nil)

func (m *LogRepo) CreateLog(ctx context.Context, l *models.ApplicationLog) (int64, error) {
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = int64(len(m.Stored) + 1)
	m.Stored = append(m.Stored, *l)
	return l.ID, nil
}

func (m *LogRepo) ListLogs(ctx context.Context, f repository.LogFilter) ([]models.ApplicationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ApplicationLog, 0, len(m.Stored))
	for i := len(m.Stored) - 1; i >= 0; i-- {
		out = append(out, m.Stored[i])
	}
	lo, hi := f.Page.Offset(), f.Page.Offset()+f.Page.Limit()
	if lo > len(out) {
		return nil, nil
	}
	if hi > len(out) {
		hi = len(out)
	}
	return out[lo:hi], nil
}

func (m *LogRepo) CountLogs(ctx context.Context, f repository.LogFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.Stored)), nil
}

// ProjectRepo wraps a real ProjectRepo. BeforeTransition runs ahead of every
// TransitionStatus call, which lets a test interleave a competing writer.
type ProjectRepo struct {
	repository.ProjectRepo
	BeforeTransition func(ctx context.Context, id int64)
	TransitionErr    error
}

func (m *ProjectRepo) TransitionStatus(ctx context.Context, id int64, from []models.Status, to models.Status, actor repository.Actor) (bool, error) {
	if m.BeforeTransition != nil {
		m.BeforeTransition(ctx, id)
	}
	if m.TransitionErr != nil {
		return false, m.TransitionErr
	}
	return m.ProjectRepo.TransitionStatus(ctx, id, from, to, actor)
}

// CommentRepo wraps a real CommentRepo and fails CreateComment with CreateErr
// when set.
type CommentRepo struct {
	repository.CommentRepo
	CreateErr error
}

func (m *CommentRepo) CreateComment(ctx context.Context, c *models.Comment) (int64, error) {
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	return m.CommentRepo.CreateComment(ctx, c)
}
