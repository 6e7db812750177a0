package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"kb-assistant/internal/api"
)

// DefaultMaxFileSize caps how much of a single file is read into memory
const DefaultMaxFileSize = 50 << 20

// LoadFile reads a file from disk into a FileRef named after its base name
func LoadFile(path string, maxBytes int64) (api.FileRef, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileSize
	}

	file, err := os.Open(path)
	if err != nil {
		return api.FileRef{}, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return api.FileRef{}, err
	}
	if info.IsDir() {
		return api.FileRef{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxBytes {
		return api.FileRef{}, fmt.Errorf("%s is larger than %d bytes", path, maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return api.FileRef{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return api.FileRef{Name: filepath.Base(path), Data: data}, nil
}

// LoadFiles reads every path. Files that cannot be read are skipped and
// their errors returned alongside the files that loaded.
func LoadFiles(paths []string, maxBytes int64) ([]api.FileRef, []error) {
	var refs []api.FileRef
	var errs []error
	for _, p := range paths {
		ref, err := LoadFile(p, maxBytes)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refs = append(refs, ref)
	}
	return refs, errs
}
