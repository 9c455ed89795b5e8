package storage

import (
	"context"
	"time"

	"github.com/BerylCAtieno/pdf-accessibility-checker/internal/utils"
)

// StagedPrefix marks every object written by a Stager, so sweeps never touch
// anything else in a shared directory or bucket.
const StagedPrefix = "temp-"

// StagedFile is one upload made reachable to the viewer for a single request.
type StagedFile struct {
	Name string
	// Path is the filesystem location; empty for remote backends.
	Path string
	// URL is the value handed to the viewer's file parameter.
	URL  string
	Size int64
}

type Stager interface {
	Stage(ctx context.Context, name string, data []byte) (*StagedFile, error)
	Remove(ctx context.Context, file *StagedFile) error
	Exists(ctx context.Context, file *StagedFile) (bool, error)
	CleanStale(ctx context.Context, maxAge time.Duration) CleanStaleResult
}

// CleanStaleResult contains the outcome of a stale staging sweep.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a staged name with its cleanup error.
type CleanupError struct {
	Name  string
	Error error
}

// StagedName builds a collision-free name for an upload.
func StagedName(original string) string {
	return StagedPrefix + utils.GenerateID() + "-" + utils.SanitizeFileName(original)
}
