package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var sqlFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

// File is one goose SQL migration found on disk or in the binary.
type File struct {
	Version int64
	Name    string
	Path    string
}

// ValidateDir checks the migrations in dir on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	_, err := ListFS(os.DirFS(dir), ".")
	return err
}

// ValidateEmbedded checks the migrations compiled into the binary.
func ValidateEmbedded() error {
	_, err := ListFS(embedded, EmbeddedDir)
	return err
}

// ListFS returns the migrations under dir ordered by version. Every file must
// be named YYYYMMDDHHMMSS_name.sql with a real timestamp, versions must be
// unique, and each file needs an Up section before its Down section with
// balanced statement blocks.
func ListFS(fsys fs.FS, dir string) ([]File, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[int64]string{}
	var files []File
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		file, err := parseFileName(e.Name())
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[file.Version]; ok {
			return nil, fmt.Errorf("duplicate migration version %d in %q and %q", file.Version, prev, e.Name())
		}
		seen[file.Version] = e.Name()

		file.Path = path.Join(dir, e.Name())
		body, err := fs.ReadFile(fsys, file.Path)
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", file.Path, err)
		}
		if err := checkAnnotations(e.Name(), string(body)); err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

func parseFileName(name string) (File, error) {
	m := sqlFileRe.FindStringSubmatch(name)
	if m == nil {
		return File{}, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
	}
	if _, err := time.Parse(versionLayout, m[1]); err != nil {
		return File{}, fmt.Errorf("migration %q has an invalid timestamp: %w", name, err)
	}
	version, err := ParseVersion(m[1])
	if err != nil {
		return File{}, err
	}
	return File{Version: version, Name: m[2]}, nil
}

func checkAnnotations(name, body string) error {
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	case down < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	case down < up:
		return fmt.Errorf("migration %q has its Down section before Up", name)
	}
	begins := strings.Count(body, "-- +goose StatementBegin")
	ends := strings.Count(body, "-- +goose StatementEnd")
	if begins != ends {
		return fmt.Errorf("migration %q has %d StatementBegin and %d StatementEnd", name, begins, ends)
	}
	return nil
}
