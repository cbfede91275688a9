package storage

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/tcmartin/connectsync/pkg/connecterr"
)

// FileStore keeps flows in a directory
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. Relative patterns passed to
// Load are resolved against dir as well.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = "."
	}
	return &FileStore{dir: dir}
}

// Dir returns the root directory
func (s *FileStore) Dir() string {
	return s.dir
}

// Save implements FlowStore
func (s *FileStore) Save(name string, data []byte) (string, error) {
	if name == "" {
		return "", connecterr.Validation("cannot save a flow without a name")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", s.dir)
	}
	path := filepath.Join(s.dir, FileName(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	return path, nil
}

// Load implements FlowStore
func (s *FileStore) Load(patterns ...string) ([]LocalFlow, error) {
	seen := map[string]bool{}
	var paths []string
	for _, pattern := range patterns {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(s.dir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, connecterr.Validation("invalid pattern %q: %v", pattern, err)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	if len(paths) == 0 {
		return nil, connecterr.Validation("no files match %v", patterns)
	}
	sort.Strings(paths)

	flows := make([]LocalFlow, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", p)
		}
		flows = append(flows, LocalFlow{Path: p, Content: data})
	}
	return flows, nil
}
