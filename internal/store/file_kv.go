package store

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const recordExt = ".rec"

// FileKV stores one file per record under a root directory. Writes go
// through a temp file and rename so a crash never leaves a torn record.
type FileKV struct {
	dir string
}

// NewFileKV returns a FileKV rooted at dir, creating it when missing.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create store dir %s", dir)
	}
	return &FileKV{dir: dir}, nil
}

func (s *FileKV) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key)+recordExt)
}

func (s *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	b, err := readFile(s.path(key))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *FileKV) Put(_ context.Context, key string, value []byte) error {
	return errors.Wrapf(writeFile(s.path(key), value, 0o600), "write %s", key)
}

func (s *FileKV) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}

func (s *FileKV) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, recordExt) {
			return nil
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), recordExt)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileKV) Close() error { return nil }
