// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	dbfs "github.com/garnizeh/intake/db"
	"github.com/garnizeh/intake/internal/db"
)

var seq atomic.Int64

// New returns an in-memory database private to the calling test with all
// migrations applied. Seed categories are not loaded.
func New(t testing.TB) *db.DB {
	t.Helper()
	ctx := context.Background()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	d, err := db.New(ctx, dsn, nil)
	if err != nil {
		t.Fatalf("dbtest: open: %v", err)
	}
	if err := db.Migrate(ctx, d, dbfs.Migrations, nil); err != nil {
		d.Close()
		t.Fatalf("dbtest: migrate: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}
