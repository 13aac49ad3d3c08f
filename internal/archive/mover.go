package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fakturo/fakturo/internal/errors"
	"github.com/fakturo/fakturo/internal/logging"
)

// markerDeleteAttempts and markerDeleteDelay bound the marker deletion
// retry. Filesystem locks on some platforms release within a few hundred
// milliseconds, so a short fixed retry covers the common transient case.
const (
	markerDeleteAttempts = 3
	markerDeleteDelay    = 250 * time.Millisecond
)

// Mover places processed archives in the archive or error directory and
// removes their markers. Directories are created on demand. Moves are a
// single attempt: a failed move leaves the archive in place for the
// fallback rescan to pick up again.
type Mover struct {
	archiveDir string
	errorDir   string
	logger     logging.Logger
}

// NewMover creates a mover targeting the given directories.
func NewMover(archiveDir, errorDir string, logger logging.Logger) *Mover {
	return &Mover{
		archiveDir: archiveDir,
		errorDir:   errorDir,
		logger:     logger.WithComponent("mover"),
	}
}

// ToArchive moves the archive to the archive directory after success.
func (m *Mover) ToArchive(ctx context.Context, archivePath string) error {
	return m.move(ctx, archivePath, m.archiveDir)
}

// ToError moves the archive to the error directory after failure.
func (m *Mover) ToError(ctx context.Context, archivePath string) error {
	return m.move(ctx, archivePath, m.errorDir)
}

func (m *Mover) move(ctx context.Context, archivePath, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIOError(errors.ErrCodeMoveFailed,
			"creating target directory "+dir, err).WithArchive(archivePath, "")
	}

	target := filepath.Join(dir, filepath.Base(archivePath))
	if err := moveFile(archivePath, target); err != nil {
		// Not retried: the archive stays in place and the fallback rescan
		// will resubmit it, which is an accepted duplicate-processing risk.
		m.logger.Error(ctx, err, "Archive move failed",
			"archive", archivePath, "target", target)
		return errors.NewIOError(errors.ErrCodeMoveFailed,
			"moving archive to "+dir, err).WithArchive(archivePath, "")
	}

	m.logger.Debug(ctx, "Archive moved", "archive", archivePath, "target", target)
	return nil
}

// DeleteMarker removes a marker file with a small fixed retry.
func (m *Mover) DeleteMarker(ctx context.Context, markerPath string) error {
	var lastErr error
	for attempt := 1; attempt <= markerDeleteAttempts; attempt++ {
		err := os.Remove(markerPath)
		if err == nil || os.IsNotExist(err) {
			return nil
		}
		lastErr = err

		m.logger.Warn(ctx, err, "Marker deletion failed, retrying",
			"marker", markerPath, "attempt", attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(markerDeleteDelay):
		}
	}

	return errors.NewIOError(errors.ErrCodeMoveFailed,
		"deleting marker", lastErr).WithArchive(markerPath, "")
}

// moveFile renames the file, falling back to copy-then-delete only when the
// rename fails because source and target sit on different filesystems. The
// fallback still presents as one move to callers.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	return os.Remove(src)
}
