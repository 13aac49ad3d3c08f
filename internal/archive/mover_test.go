package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakturo/fakturo/internal/logging"
)

func testMover(t *testing.T) (*Mover, string, string) {
	t.Helper()

	archiveDir := filepath.Join(t.TempDir(), "archived")
	errorDir := filepath.Join(t.TempDir(), "failed")
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelError,
		Format: "text",
		Output: io.Discard,
	})

	return NewMover(archiveDir, errorDir, logger), archiveDir, errorDir
}

func TestToArchiveCreatesDirectoryAndMoves(t *testing.T) {
	mover, archiveDir, _ := testMover(t)

	src := filepath.Join(t.TempDir(), "batch.zip")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, mover.ToArchive(context.Background(), src))

	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	moved, err := os.ReadFile(filepath.Join(archiveDir, "batch.zip"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(moved))
}

func TestToErrorMovesToErrorDirectory(t *testing.T) {
	mover, _, errorDir := testMover(t)

	src := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	require.NoError(t, mover.ToError(context.Background(), src))

	_, err := os.Stat(filepath.Join(errorDir, "bad.zip"))
	assert.NoError(t, err)
}

func TestMoveFailureLeavesArchiveInPlace(t *testing.T) {
	mover, _, _ := testMover(t)

	src := filepath.Join(t.TempDir(), "ghost.zip")

	err := mover.ToArchive(context.Background(), src)
	require.Error(t, err)
}

func TestDeleteMarker(t *testing.T) {
	mover, _, _ := testMover(t)

	marker := filepath.Join(t.TempDir(), "batch.rdy")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))

	require.NoError(t, mover.DeleteMarker(context.Background(), marker))

	_, err := os.Stat(marker)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteMarkerMissingIsNotAnError(t *testing.T) {
	mover, _, _ := testMover(t)

	marker := filepath.Join(t.TempDir(), "absent.rdy")
	assert.NoError(t, mover.DeleteMarker(context.Background(), marker))
}

func TestMoveFileAcrossCopyFallbackPath(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.zip")
	dst := filepath.Join(dir, "dst.zip")
	require.NoError(t, os.WriteFile(src, []byte("abc"), 0o644))

	require.NoError(t, moveFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}
