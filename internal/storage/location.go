// Package storage resolves database names to files in the private data
// directory.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/maruel/krawldb/internal/errors"
)

// TempSuffix is the suffix of temporary files written next to database files.
// Names ending with it are reserved.
const TempSuffix = ".tmp"

// Location handles the private storage directory where every database is a
// single file named after the database.
type Location struct {
	rootDir string
}

// NewLocation initializes a Location with the given root directory.
// Creates the directory if it doesn't exist.
func NewLocation(rootDir string) (*Location, error) {
	if rootDir == "" {
		return nil, errors.New(errors.ErrInvalidConfig, "data directory is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &Location{rootDir: rootDir}, nil
}

// RootDir returns the root directory path.
func (l *Location) RootDir() string {
	return l.rootDir
}

// Path returns the file path backing the database name.
func (l *Location) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(l.rootDir, name), nil
}

// Exists reports whether the database file exists.
func (l *Location) Exists(name string) bool {
	p, err := l.Path(name)
	if err != nil {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

// List returns the names of databases present on disk, sorted.
//
// Hidden files, directories and temporary files are skipped.
func (l *Location) List() ([]string, error) {
	entries, err := os.ReadDir(l.rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", l.rootDir, err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || ValidateName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// ValidateName checks that name can be assigned to a file name inside the
// data directory.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.New(errors.ErrInvalidName, "database name is required")
	case name == "." || name == "..":
		return errors.Newf(errors.ErrInvalidName, "invalid database name %q", name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return errors.Newf(errors.ErrInvalidName, "database name %q must not contain path separators", name)
	case strings.HasSuffix(name, TempSuffix):
		return errors.Newf(errors.ErrInvalidName, "database name %q uses reserved suffix %s", name, TempSuffix)
	}
	return nil
}
