package processor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakturo/fakturo/internal/archive"
	"github.com/fakturo/fakturo/internal/config"
	pkgerrors "github.com/fakturo/fakturo/internal/errors"
	"github.com/fakturo/fakturo/internal/logging"
	"github.com/fakturo/fakturo/internal/renderer"
	"github.com/fakturo/fakturo/internal/telemetry"
	"github.com/fakturo/fakturo/internal/template"
)

func testLogger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelError,
		Format: "text",
		Output: io.Discard,
	})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	base := t.TempDir()
	return &config.Config{
		Input: config.InputConfig{
			Root:       filepath.Join(base, "in"),
			MarkerExt:  ".rdy",
			ArchiveExt: ".zip",
		},
		Output: config.OutputConfig{
			Root:       filepath.Join(base, "out"),
			ArchiveDir: filepath.Join(base, "archived"),
			ErrorDir:   filepath.Join(base, "failed"),
			Extension:  ".html",
			Sidecar:    true,
		},
		Render: config.RenderConfig{
			MaxConcurrent:  4,
			PermitTimeout:  time.Second,
			ReuseBuffers:   true,
			MaxBufferBytes: 4 * 1024 * 1024,
			IdleThreshold:  10 * time.Millisecond,
			Workers:        2,
		},
		Templates: config.TemplatesConfig{DefaultType: "20"},
	}
}

func newTestProcessor(t *testing.T, cfg *config.Config, doc renderer.DocumentRenderer) *Processor {
	t.Helper()

	logger := testLogger()
	orchestrator := renderer.NewOrchestrator(doc, &cfg.Render, logger, telemetry.Noop{})
	mover := archive.NewMover(cfg.Output.ArchiveDir, cfg.Output.ErrorDir, logger)
	store := NewTemplateStore(&cfg.Templates, logger)

	return New(cfg, template.NewEngine(), store, orchestrator, mover, nil, logger, telemetry.Noop{})
}

func writeArchive(t *testing.T, cfg *config.Config, name string, entries map[string]string) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(cfg.Input.Root, 0o755))
	path := filepath.Join(cfg.Input.Root, name)

	file, err := os.Create(path)
	require.NoError(t, err)
	writer := zip.NewWriter(file)
	for entry, body := range entries {
		w, err := writer.Create(entry)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	require.NoError(t, file.Close())

	return path
}

func twoDebtorEntries() map[string]string {
	return map[string]string{
		"batch_meta.txt": "# type 20 : 2\n# bedrag : 300,00\n",
		"batch_notes.xml": `<notas>` +
			`<praktijk naam="Praktijk Jansen" agb="01-12345"/>` +
			`<adres straat="Dorpsstraat 1" postcode="1234 AB" plaats="Ons Dorp"/>` +
			`<nota nummer="F001" debiteur="K1" bedrag="150,00">` +
			`<patient naam="De Vries" voorletters="A."/>` +
			`<regel datum="01-02-2026" code="4250" omschrijving="Consult" bedrag="150,00"/>` +
			`</nota>` +
			`<nota nummer="F002" debiteur="K2" bedrag="150,00">` +
			`<patient naam="Bakker" voorletters="B."/>` +
			`</nota>` +
			`</notas>`,
	}
}

func TestProcessArchiveWritesOneDocumentPerDebtor(t *testing.T) {
	cfg := testConfig(t)
	p := newTestProcessor(t, cfg, renderer.NewMarkupRenderer())

	path := writeArchive(t, cfg, "batch.zip", twoDebtorEntries())

	require.NoError(t, p.ProcessArchive(context.Background(), path))

	first, err := os.ReadFile(filepath.Join(cfg.Output.Root, "batch_F001.html"))
	require.NoError(t, err)
	assert.Contains(t, string(first), "Factuur F001")
	assert.Contains(t, string(first), "De Vries")
	assert.Contains(t, string(first), "Praktijk Jansen")
	assert.Contains(t, string(first), "4250")

	_, err = os.Stat(filepath.Join(cfg.Output.Root, "batch_F002.html"))
	assert.NoError(t, err)

	// Archive moved to the archive directory.
	_, err = os.Stat(filepath.Join(cfg.Output.ArchiveDir, "batch.zip"))
	assert.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestProcessArchiveWritesSidecars(t *testing.T) {
	cfg := testConfig(t)
	p := newTestProcessor(t, cfg, renderer.NewMarkupRenderer())

	path := writeArchive(t, cfg, "batch.zip", twoDebtorEntries())
	require.NoError(t, p.ProcessArchive(context.Background(), path))

	data, err := os.ReadFile(filepath.Join(cfg.Output.Root, "batch_F001.html.json"))
	require.NoError(t, err)

	var sidecar Sidecar
	require.NoError(t, json.Unmarshal(data, &sidecar))
	assert.Equal(t, "F001", sidecar.InvoiceNumber)
	assert.Equal(t, "K1", sidecar.JoinKey)
	assert.Equal(t, int64(15000), sidecar.TotalCents)
	assert.Equal(t, 1, sidecar.LineCount)
	assert.NotEmpty(t, sidecar.ProcessingID)
}

func TestMissingMetaMovesArchiveToError(t *testing.T) {
	cfg := testConfig(t)
	p := newTestProcessor(t, cfg, renderer.NewMarkupRenderer())

	path := writeArchive(t, cfg, "broken.zip", map[string]string{
		"broken_notes.xml": "<notas/>",
	})

	err := p.ProcessArchive(context.Background(), path)
	require.Error(t, err)

	var pe *pkgerrors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, pkgerrors.ErrCodeMetaMissing, pe.Code)

	_, statErr := os.Stat(filepath.Join(cfg.Output.ErrorDir, "broken.zip"))
	assert.NoError(t, statErr)

	entries, _ := os.ReadDir(cfg.Output.Root)
	assert.Empty(t, entries)
}

type failingDocRenderer struct{}

func (failingDocRenderer) Render(ctx context.Context, markup string, assets *renderer.Assets, out *bytes.Buffer) error {
	return stderrors.New("backend refused the markup")
}

func TestRenderFailureFailsWholeArchive(t *testing.T) {
	cfg := testConfig(t)
	p := newTestProcessor(t, cfg, failingDocRenderer{})

	path := writeArchive(t, cfg, "batch.zip", twoDebtorEntries())

	err := p.ProcessArchive(context.Background(), path)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRenderError(err))

	_, statErr := os.Stat(filepath.Join(cfg.Output.ErrorDir, "batch.zip"))
	assert.NoError(t, statErr)

	entries, _ := os.ReadDir(cfg.Output.Root)
	assert.Empty(t, entries)
}

func TestProcessMarkerConsumesMarker(t *testing.T) {
	cfg := testConfig(t)
	p := newTestProcessor(t, cfg, renderer.NewMarkupRenderer())

	writeArchive(t, cfg, "batch.zip", twoDebtorEntries())
	marker := filepath.Join(cfg.Input.Root, "batch.rdy")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))

	require.NoError(t, p.ProcessMarker(context.Background(), marker))

	_, err := os.Stat(marker)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(cfg.Output.ArchiveDir, "batch.zip"))
	assert.NoError(t, err)
}

func TestProcessMarkerWithoutArchiveIsDataError(t *testing.T) {
	cfg := testConfig(t)
	p := newTestProcessor(t, cfg, renderer.NewMarkupRenderer())

	require.NoError(t, os.MkdirAll(cfg.Input.Root, 0o755))
	marker := filepath.Join(cfg.Input.Root, "ghost.rdy")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))

	err := p.ProcessMarker(context.Background(), marker)
	require.Error(t, err)

	var pe *pkgerrors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, pkgerrors.ErrCodeMarkerOrphan, pe.Code)

	// The orphan marker cannot fire again.
	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSanitizeIdentifier(t *testing.T) {
	assert.Equal(t, "F001", sanitizeIdentifier("F001"))
	assert.Equal(t, "F_001_a", sanitizeIdentifier("F/001:a"))
	assert.Equal(t, "nota-2026.1", sanitizeIdentifier("nota-2026.1"))
	assert.Equal(t, "record", sanitizeIdentifier(""))
}
