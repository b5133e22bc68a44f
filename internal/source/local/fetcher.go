// Package local serves archives from a directory, for offline runs and tests.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/timmy/parlsync/internal/source"
)

// SourceID is the identifier reported by every local fetcher.
const SourceID = "local"

// Fetcher implements source.Fetcher over a directory of archives.
type Fetcher struct {
	dir string
}

// NewFetcher creates a Fetcher reading from dir.
func NewFetcher(dir string) *Fetcher {
	return &Fetcher{dir: dir}
}

// GetSourceID returns the unique identifier for this source.
func (f *Fetcher) GetSourceID() string {
	return SourceID
}

// Fetch reads <dir>/<name>. Names containing path separators are rejected.
func (f *Fetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, &source.FetchError{Name: name, Err: errors.New("invalid archive name")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &source.FetchError{Name: name, Err: err}
	}

	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		return nil, &source.FetchError{Name: name, Err: err}
	}
	return data, nil
}

// List returns the zip archives present in the directory, sorted by name.
// A missing directory yields an empty list.
func (f *Fetcher) List() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", f.dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".zip") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
