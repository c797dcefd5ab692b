// Command intakectl runs maintenance tasks against the intake database.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/garnizeh/intake/api"
	dbfs "github.com/garnizeh/intake/db"
	"github.com/garnizeh/intake/internal/config"
	"github.com/garnizeh/intake/internal/db"
	"github.com/garnizeh/intake/internal/repository/sqlite"
	"github.com/garnizeh/intake/pkg/models"
)

const usage = `usage: intakectl [-config file] <command> [flags]

commands:
  migrate                                   apply migrations and seed categories
  create-reviewer -username -email -password [-superuser]
  backup [-out file]                        write a consistent copy of the database
  restore -from file                        replace the database with a backup
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "intakectl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("intakectl", flag.ContinueOnError)
	configPath := global.String("config", "", "Path to config YAML file")
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return fmt.Errorf("missing command")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "migrate":
		return migrate(ctx, cfg, out)
	case "create-reviewer":
		return createReviewer(ctx, cfg, rest, out)
	case "backup":
		return backup(ctx, cfg, rest, out)
	case "restore":
		return restore(cfg, rest, out)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func migrate(ctx context.Context, cfg *config.Config, out io.Writer) error {
	database, err := db.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(out, "Database initialized successfully.")
	return nil
}

func createReviewer(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create-reviewer", flag.ContinueOnError)
	username := fs.String("username", "", "login name")
	email := fs.String("email", "", "contact address")
	password := fs.String("password", "", "initial password")
	superuser := fs.Bool("superuser", false, "grant superuser")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*username) == "" {
		return fmt.Errorf("create-reviewer: -username is required")
	}
	hash, err := api.HashPassword(*password)
	if err != nil {
		return err
	}

	database, err := db.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer database.Close()

	repo := sqlite.New(database, nil)
	id, err := repo.CreateReviewer(ctx, &models.Reviewer{
		Username:     strings.TrimSpace(*username),
		Email:        strings.TrimSpace(*email),
		PasswordHash: hash,
		IsSuperuser:  *superuser,
	})
	if err != nil {
		return fmt.Errorf("create reviewer: %w", err)
	}
	fmt.Fprintf(out, "Reviewer %s created with id %d.\n", *username, id)
	return nil
}

// backup uses VACUUM INTO so the copy is consistent while the server runs.
func backup(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	dst := fs.String("out", "", "backup file (default <database>.<timestamp>.bak)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dst == "" {
		*dst = fmt.Sprintf("%s.%s.bak", cfg.DatabasePath, time.Now().UTC().Format("20060102T150405Z"))
	}
	if _, err := os.Stat(*dst); err == nil {
		return fmt.Errorf("backup: %s already exists", *dst)
	}

	database, err := db.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer database.Close()

	if _, err := database.Exec(ctx, `VACUUM INTO ?`, *dst); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	fmt.Fprintf(out, "Database backup written to %s.\n", *dst)
	return nil
}

// restore replaces the database file. The server must be stopped.
func restore(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	src := fs.String("from", "", "backup file to restore")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *src == "" {
		return fmt.Errorf("restore: -from is required")
	}

	in, err := os.Open(*src)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	defer in.Close()

	dst := cfg.DatabasePath
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".restore-*")
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("restore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	// stale WAL files would be replayed over the restored copy
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dst + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("restore: %w", err)
		}
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	fmt.Fprintf(out, "Database restored from %s.\n", *src)
	return nil
}
