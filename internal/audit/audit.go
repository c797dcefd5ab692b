// Package audit appends application log entries for user-visible actions.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/garnizeh/intake/pkg/models"
	"github.com/garnizeh/intake/pkg/repository"
)

// Entry is one audit record. Category is stored as the logger name.
type Entry struct {
	Level    models.LogLevel
	Category string
	Message  string
	Actor    string
}

// Sink records audit entries.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// RepoSink persists entries through a LogRepo and mirrors them to slog.
type RepoSink struct {
	repo   repository.LogRepo
	logger *slog.Logger
}

var _ Sink = (*RepoSink)(nil)

func NewRepoSink(repo repository.LogRepo, logger *slog.Logger) *RepoSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepoSink{repo: repo, logger: logger}
}

func (s *RepoSink) Record(ctx context.Context, e Entry) error {
	if e.Category == "" || e.Message == "" {
		return errors.New("audit entry needs a category and a message")
	}
	if e.Level == "" {
		e.Level = models.LevelInfo
	}

	row := &models.ApplicationLog{Level: e.Level, LoggerName: e.Category, Message: e.Message}
	if e.Actor != "" {
		actor := e.Actor
		row.InteractedBy = &actor
	}

	s.logger.Log(ctx, slogLevel(e.Level), e.Message, "category", e.Category, "actor", e.Actor)
	if _, err := s.repo.CreateLog(ctx, row); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

func slogLevel(l models.LogLevel) slog.Level {
	switch l {
	case models.LevelDebug:
		return slog.LevelDebug
	case models.LevelWarning:
		return slog.LevelWarn
	case models.LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Memory keeps entries in a slice. Used by tests.
type Memory struct {
	Entries []Entry
	Err     error
}

var _ Sink = (*Memory)(nil)

func (m *Memory) Record(_ context.Context, e Entry) error {
	if m.Err != nil {
		return m.Err
	}
	if e.Level == "" {
		e.Level = models.LevelInfo
	}
	m.Entries = append(m.Entries, e)
	return nil
}
