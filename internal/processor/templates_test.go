package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakturo/fakturo/internal/config"
)

func TestLookupFindsTemplateForType(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "21.html"), []byte("type 21 layout"), 0o644))

	store := NewTemplateStore(&config.TemplatesConfig{Dir: dir, DefaultType: "20"}, testLogger())

	assert.Equal(t, "type 21 layout", store.Lookup(context.Background(), "21"))
}

func TestLookupFallsBackToDefaultType(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20.html"), []byte("default layout"), 0o644))

	store := NewTemplateStore(&config.TemplatesConfig{Dir: dir, DefaultType: "20"}, testLogger())

	assert.Equal(t, "default layout", store.Lookup(context.Background(), "99"))
}

func TestLookupFallsBackToBuiltin(t *testing.T) {
	store := NewTemplateStore(&config.TemplatesConfig{Dir: t.TempDir(), DefaultType: "20"}, testLogger())

	text := store.Lookup(context.Background(), "99")
	assert.Contains(t, text, "${debtor.invoiceNumber}")
	assert.Contains(t, text, "data-repeat-over=\"lines\"")
}

func TestLookupCachesResults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "20.html")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	store := NewTemplateStore(&config.TemplatesConfig{Dir: dir, DefaultType: "20"}, testLogger())

	assert.Equal(t, "v1", store.Lookup(context.Background(), "20"))

	// Templates are cached for the process lifetime; a rewrite on disk is
	// not observed.
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	assert.Equal(t, "v1", store.Lookup(context.Background(), "20"))
}

func TestLookupRejectsTraversalTypeCodes(t *testing.T) {
	store := NewTemplateStore(&config.TemplatesConfig{Dir: t.TempDir()}, testLogger())

	text := store.Lookup(context.Background(), "../../etc/passwd")
	assert.Contains(t, text, "${debtor.invoiceNumber}")
}
