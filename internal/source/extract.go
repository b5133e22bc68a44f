package source

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/timmy/parlsync/internal/logger"
	"golang.org/x/text/encoding/charmap"
)

// ErrCorruptArchive is returned for data that is not a readable zip archive.
var ErrCorruptArchive = errors.New("corrupt archive")

// Extract decodes every file entry of a zip archive from windows-1250.
// Directories are skipped. Entries that decode to replacement characters are
// logged as *DecodeError and dropped.
// Parameters:
//   - ctx: context carrying the logger.
//   - data: raw archive bytes.
//
// Returns:
//   - map[string]string: entry name to decoded text.
//   - error: wraps ErrCorruptArchive when the archive cannot be read.
func Extract(ctx context.Context, data []byte) (map[string]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}

	log := logger.FromContext(ctx)
	files := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		raw, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s: %v", ErrCorruptArchive, f.Name, err)
		}

		text, err := decode(f.Name, raw)
		if err != nil {
			log.WithError(err).WithField("entry", f.Name).Warn("Dropping undecodable entry")
			continue
		}
		files[f.Name] = text
	}

	log.WithField(logger.FieldCount, len(files)).Debug("Archive extracted")
	return files, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// decode converts windows-1250 bytes to UTF-8. Undefined code points come
// back as U+FFFD and fail the entry.
func decode(name string, raw []byte) (string, error) {
	out, err := charmap.Windows1250.NewDecoder().Bytes(raw)
	if err != nil {
		return "", &DecodeError{Entry: name, Err: err}
	}
	text := string(out)
	if n := strings.Count(text, string(utf8.RuneError)); n > 0 {
		return "", &DecodeError{Entry: name, Invalid: n}
	}
	return text, nil
}
