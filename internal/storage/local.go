package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type localStager struct {
	dir     string
	urlPath string
}

// NewLocalStager stages files into dir, which must be served over HTTP at urlPath.
func NewLocalStager(dir, urlPath string) (Stager, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve staging directory: %w", err)
	}

	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	if !strings.HasSuffix(urlPath, "/") {
		urlPath += "/"
	}

	return &localStager{dir: absDir, urlPath: urlPath}, nil
}

func (s *localStager) Stage(ctx context.Context, name string, data []byte) (*StagedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stagedName := StagedName(name)
	path := filepath.Join(s.dir, stagedName)

	// O_EXCL: an existing file with this name is never overwritten.
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file: %w", err)
	}

	if _, err := out.Write(data); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write staged file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to close staged file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("staged file was not written successfully: %s: %w", path, err)
	}
	if info.Size() != int64(len(data)) {
		_ = os.Remove(path)
		return nil, fmt.Errorf("staged file size mismatch: wrote %d bytes, found %d", len(data), info.Size())
	}

	return &StagedFile{
		Name: stagedName,
		Path: path,
		URL:  s.urlPath + url.PathEscape(stagedName),
		Size: info.Size(),
	}, nil
}

func (s *localStager) Remove(_ context.Context, file *StagedFile) error {
	if file == nil || file.Path == "" {
		return nil
	}
	if err := os.Remove(file.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove staged file: %w", err)
	}
	return nil
}

func (s *localStager) Exists(_ context.Context, file *StagedFile) (bool, error) {
	if file == nil || file.Path == "" {
		return false, nil
	}
	_, err := os.Stat(file.Path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// CleanStale removes staged files older than maxAge. Files without the staged
// prefix are left alone: the staging directory is shared with the viewer build.
func (s *localStager) CleanStale(ctx context.Context, maxAge time.Duration) CleanStaleResult {
	result := CleanStaleResult{}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			result.Errors = append(result.Errors, CleanupError{Name: s.dir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), StagedPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Name: entry.Name(), Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result.Errors = append(result.Errors, CleanupError{Name: entry.Name(), Error: err})
			continue
		}
		result.Removed = append(result.Removed, entry.Name())
	}

	return result
}
