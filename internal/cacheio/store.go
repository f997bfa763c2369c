// Package cacheio implements the Cache Store of spec.md §4.2: a
// filesystem-backed, advisory key/value area under a user cache directory.
package cacheio

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Store is a filesystem-backed Cache Store. A zero-value dir makes every
// operation a graceful no-op, matching the "absent directory ⇒ no-op" rule
// in spec.md §4.2. A configured dir that does not exist yet is created by
// the first Save; until then Lookup and Load find nothing.
type Store struct {
	dir string
	log *zap.Logger
}

// New builds a Store rooted at dir. log may be nil, in which case a no-op
// logger is used.
func New(dir string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, log: log}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Save writes data atomically under name: a temp file in the same
// directory, then a rename, so a concurrent reader never observes a
// partial write. Returns the final path, or "" on any I/O error.
func (s *Store) Save(name string, data []byte) string {
	if s.dir == "" {
		return ""
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.log.Warn("cacheio: mkdir failed", zap.String("dir", s.dir), zap.Error(err))
		return ""
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		s.log.Warn("cacheio: create temp failed", zap.String("name", name), zap.Error(err))
		return ""
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.log.Warn("cacheio: write failed", zap.String("name", name), zap.Error(err))
		return ""
	}
	if err := tmp.Close(); err != nil {
		s.log.Warn("cacheio: close failed", zap.String("name", name), zap.Error(err))
		return ""
	}

	dest := s.path(name)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		s.log.Warn("cacheio: rename failed", zap.String("name", name), zap.Error(err))
		return ""
	}
	return dest
}

// Lookup returns the path to name if it exists and is readable, "" otherwise.
func (s *Store) Lookup(name string) string {
	if s.dir == "" {
		return ""
	}
	p := s.path(name)
	f, err := os.Open(p)
	if err != nil {
		return ""
	}
	f.Close()
	return p
}

// Load returns the full contents of name, or nil on any error.
func (s *Store) Load(name string) []byte {
	if s.dir == "" {
		return nil
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil
	}
	return data
}

// Delete removes name, silently ignoring any failure.
func (s *Store) Delete(name string) {
	if s.dir == "" {
		return
	}
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		s.log.Debug("cacheio: delete failed", zap.String("name", name), zap.Error(err))
	}
}
