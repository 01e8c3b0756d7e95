package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"
)

const (
	DefaultDir = "pkg/migrate/migrations"
	// EmbeddedDir is the path of the compiled-in migrations inside Embedded.
	EmbeddedDir = "migrations"

	dialect = "postgres"
)

//go:embed migrations/*.sql
var embedded embed.FS

// goose keeps its dialect and base FS in package state.
var gooseMu sync.Mutex

// Source locates a set of goose migrations.
type Source struct {
	FS  fs.FS
	Dir string
}

// DiskSource reads migrations from dir on the local filesystem.
func DiskSource(dir string) Source {
	return Source{FS: os.DirFS(dir), Dir: "."}
}

// EmbeddedSource reads the migrations compiled into the binary.
func EmbeddedSource() Source {
	return Source{FS: embedded, Dir: EmbeddedDir}
}

// Embedded exposes the migrations compiled into the binary.
func Embedded() fs.FS {
	return embedded
}

// Files lists and validates the migrations of src.
func (src Source) Files() ([]File, error) {
	return ListFS(src.FS, src.Dir)
}

// Run executes a goose command (up, down, status, redo, reset) against src.
func Run(ctx context.Context, db *sql.DB, src Source, command string, args ...string) error {
	return withGoose(src, db, func() error {
		if err := goose.RunContext(ctx, command, db, src.Dir, args...); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	})
}

// MigrateToVersion moves the schema up or down to targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, src Source, targetVersion string) error {
	target, err := ParseVersion(targetVersion)
	if err != nil {
		return err
	}
	return withGoose(src, db, func() error {
		current, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		switch {
		case current == target:
			return nil
		case current < target:
			if err := goose.UpToContext(ctx, db, src.Dir, target); err != nil {
				return fmt.Errorf("goose up-to %d: %w", target, err)
			}
		default:
			if err := goose.DownToContext(ctx, db, src.Dir, target); err != nil {
				return fmt.Errorf("goose down-to %d: %w", target, err)
			}
		}
		return nil
	})
}

func withGoose(src Source, db *sql.DB, fn func() error) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if src.FS == nil || src.Dir == "" {
		return fmt.Errorf("migration source is required")
	}
	if _, err := src.Files(); err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	goose.SetBaseFS(src.FS)
	defer goose.SetBaseFS(nil)
	return fn()
}

// ParseVersion validates a YYYYMMDDHHMMSS migration version.
func ParseVersion(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("target version is required")
	}
	if len(raw) != len(versionLayout) {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", raw)
	}
	target, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", raw, err)
	}
	return target, nil
}
