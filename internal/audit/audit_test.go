package audit_test

import (
	"context"
	"testing"

	"github.com/garnizeh/intake/internal/audit"
	"github.com/garnizeh/intake/internal/db/dbtest"
	"github.com/garnizeh/intake/internal/repository/sqlite"
	"github.com/garnizeh/intake/pkg/models"
	"github.com/garnizeh/intake/pkg/repository"
)

func TestRepoSinkRecord(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.New(dbtest.New(t), nil)
	sink := audit.NewRepoSink(repo, nil)

	if err := sink.Record(ctx, audit.Entry{Category: "Accept project", Message: "Project 'X' accepted by root.", Actor: "root"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.Record(ctx, audit.Entry{Level: models.LevelWarning, Category: "Accept project", Message: "notification failed"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	logs, err := repo.ListLogs(ctx, repository.LogFilter{Page: repository.Page{Size: repository.LogPageSize}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(logs))
	}
	if logs[0].Level != models.LevelWarning || logs[0].InteractedBy != nil {
		t.Fatalf("unexpected newest entry: %#v", logs[0])
	}
	if logs[1].Level != models.LevelInfo || logs[1].InteractedBy == nil || *logs[1].InteractedBy != "root" {
		t.Fatalf("unexpected oldest entry: %#v", logs[1])
	}
}

func TestRepoSinkRejectsIncompleteEntry(t *testing.T) {
	sink := audit.NewRepoSink(sqlite.New(dbtest.New(t), nil), nil)
	if err := sink.Record(context.Background(), audit.Entry{Message: "no category"}); err == nil {
		t.Fatalf("expected error for missing category")
	}
}
