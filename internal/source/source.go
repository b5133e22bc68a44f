// Package source fetches open-data archives and extracts their tables.
package source

import (
	"context"
	"fmt"
)

// Fetcher retrieves a published archive by name.
type Fetcher interface {
	// GetSourceID returns a stable identifier for this source.
	// Parameters: none.
	// Returns:
	//   - string: source identifier, e.g. "psp".
	GetSourceID() string

	// Fetch downloads one archive.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - name: archive file name, e.g. "poslanci.zip".
	// Returns:
	//   - []byte: raw archive bytes.
	//   - error: a *FetchError when the archive cannot be retrieved.
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// FetchError reports an archive that could not be retrieved or opened.
// StatusCode is set for HTTP failures only.
type FetchError struct {
	Name       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Name, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Name, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError reports an archive entry that did not decode cleanly: either
// the decoder failed (Err) or Invalid characters had no mapping.
type DecodeError struct {
	Entry   string
	Invalid int
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %v", e.Entry, e.Err)
	}
	return fmt.Sprintf("decode %s: %d undecodable characters", e.Entry, e.Invalid)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Load fetches an archive and extracts its entries. Both download and
// extraction failures come back as *FetchError.
func Load(ctx context.Context, f Fetcher, name string) (map[string]string, error) {
	data, err := f.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	files, err := Extract(ctx, data)
	if err != nil {
		return nil, &FetchError{Name: name, Err: err}
	}
	return files, nil
}
