package jsondb

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maruel/krawldb/internal/errors"
	"github.com/maruel/krawldb/internal/storage"
)

// Store owns the file backing a database.
//
// It only supports whole-list reads and whole-list overwrites. Store does no
// locking; callers serialize writes.
type Store[T any] struct {
	path  string
	codec Codec[T]
}

// NewStore returns a Store for the file at path.
func NewStore[T any](path string, codec Codec[T]) *Store[T] {
	if codec == nil {
		codec = JSONCodec[T]{}
	}
	return &Store[T]{path: path, codec: codec}
}

// Path returns the backing file path.
func (s *Store[T]) Path() string {
	return s.path
}

// Exists reports whether the backing file exists.
func (s *Store[T]) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Read loads and decodes the whole file.
//
// A missing file is an empty list. Any decoding failure fails the whole read.
func (s *Store[T]) Read() ([]T, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []T{}, nil
		}
		return nil, errors.IO(fmt.Sprintf("failed to read %s", s.path), err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, errors.Decode(fmt.Sprintf("failed to parse %s", s.path), stderrors.New("top-level value is not a JSON array"))
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Decode(fmt.Sprintf("failed to parse %s", s.path), err)
	}
	rows := make([]T, 0, len(raw))
	for i, r := range raw {
		row, err := s.codec.Decode(r)
		if err != nil {
			return nil, errors.Decode(fmt.Sprintf("failed to decode record %d in %s", i, s.path), err).WithDetail("index", i)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Overwrite replaces the file content with the serialized rows.
//
// The data is written to a temporary file in the same directory and renamed
// over the backing file, so readers see either the old or the new content.
func (s *Store[T]) Overwrite(rows []T) error {
	data, err := s.marshal(rows)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return errors.IO(fmt.Sprintf("failed to create directory for %s", s.path), err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".*"+storage.TempSuffix)
	if err != nil {
		return errors.IO(fmt.Sprintf("failed to create temporary file for %s", s.path), err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		return errors.IO(fmt.Sprintf("failed to write %s", s.path), stderrors.Join(err, f.Close(), os.Remove(tmp)))
	}
	if err := f.Sync(); err != nil {
		return errors.IO(fmt.Sprintf("failed to sync %s", s.path), stderrors.Join(err, f.Close(), os.Remove(tmp)))
	}
	if err := f.Chmod(0o644); err != nil {
		return errors.IO(fmt.Sprintf("failed to chmod %s", s.path), stderrors.Join(err, f.Close(), os.Remove(tmp)))
	}
	if err := f.Close(); err != nil {
		return errors.IO(fmt.Sprintf("failed to close %s", s.path), stderrors.Join(err, os.Remove(tmp)))
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.IO(fmt.Sprintf("failed to replace %s", s.path), stderrors.Join(err, os.Remove(tmp)))
	}
	return nil
}

// Delete removes the backing file. A missing file is not an error.
func (s *Store[T]) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.IO(fmt.Sprintf("failed to delete %s", s.path), err)
	}
	return nil
}

func (s *Store[T]) marshal(rows []T) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range rows {
		data, err := s.codec.Encode(row)
		if err != nil {
			return nil, errors.Encode(fmt.Sprintf("failed to encode record %d", i), err).WithDetail("index", i)
		}
		if !json.Valid(data) {
			return nil, errors.Encode(fmt.Sprintf("failed to encode record %d", i), stderrors.New("codec produced invalid JSON")).WithDetail("index", i)
		}
		if i != 0 {
			buf.WriteByte(',')
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
