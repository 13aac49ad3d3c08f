// Package processor coordinates the per-archive pipeline: extract the
// archive, parse its contents into the canonical bundle, resolve a template
// per debtor, render the documents under the orchestrator's concurrency cap,
// write the outputs, and move the archive to the archive or error directory.
//
// The policy is all-or-nothing per archive: if any debtor fails, the written
// outputs are removed and the whole archive moves to the error directory.
// Every archive ends in exactly one of {outputs produced and archived, moved
// to error}.
package processor

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fakturo/fakturo/internal/archive"
	"github.com/fakturo/fakturo/internal/config"
	"github.com/fakturo/fakturo/internal/errors"
	"github.com/fakturo/fakturo/internal/logging"
	"github.com/fakturo/fakturo/internal/parser"
	"github.com/fakturo/fakturo/internal/renderer"
	"github.com/fakturo/fakturo/internal/telemetry"
	"github.com/fakturo/fakturo/internal/template"
	"github.com/fakturo/fakturo/internal/types"
)

// Processor runs one archive end to end.
type Processor struct {
	cfg          *config.Config
	engine       *template.Engine
	templates    *TemplateStore
	orchestrator *renderer.Orchestrator
	mover        *archive.Mover
	assets       *renderer.Assets
	logger       logging.Logger
	errs         *errors.ErrorHandler
	tracker      telemetry.Tracker
}

// New creates a processor wired to its collaborators.
func New(
	cfg *config.Config,
	engine *template.Engine,
	templates *TemplateStore,
	orchestrator *renderer.Orchestrator,
	mover *archive.Mover,
	assets *renderer.Assets,
	logger logging.Logger,
	tracker telemetry.Tracker,
) *Processor {
	if assets == nil {
		assets = &renderer.Assets{}
	}
	componentLogger := logger.WithComponent("processor")
	return &Processor{
		cfg:          cfg,
		engine:       engine,
		templates:    templates,
		orchestrator: orchestrator,
		mover:        mover,
		assets:       assets,
		logger:       componentLogger,
		errs:         errors.NewErrorHandler(componentLogger),
		tracker:      tracker,
	}
}

// ProcessMarker resolves a marker to its sibling archive and processes it.
// A marker whose archive does not exist is a data error: the marker is
// removed so it cannot fire again, and the error is reported.
func (p *Processor) ProcessMarker(ctx context.Context, markerPath string) error {
	archivePath := strings.TrimSuffix(markerPath, p.cfg.Input.MarkerExt) + p.cfg.Input.ArchiveExt

	if _, err := os.Stat(archivePath); err != nil {
		orphanErr := errors.ErrMarkerOrphan(markerPath)
		p.logger.Error(ctx, orphanErr, "Marker has no matching archive",
			"marker", markerPath, "expected_archive", archivePath)
		if delErr := p.mover.DeleteMarker(ctx, markerPath); delErr != nil {
			p.logger.Warn(ctx, delErr, "Orphan marker could not be removed", "marker", markerPath)
		}
		return orphanErr
	}

	err := p.ProcessArchive(ctx, archivePath)

	// The marker is consumed either way; the archive itself has already been
	// moved to the archive or error directory.
	if delErr := p.mover.DeleteMarker(ctx, markerPath); delErr != nil {
		p.logger.Warn(ctx, delErr, "Marker deletion failed", "marker", markerPath)
	}

	return err
}

// ProcessArchive runs the extract-parse-render-write sequence for one archive
// and moves it to the archive or error directory afterwards.
func (p *Processor) ProcessArchive(ctx context.Context, archivePath string) error {
	processingID := uuid.NewString()
	logger := p.logger.With("archive", filepath.Base(archivePath), "processing_id", processingID)

	doneArchive := p.tracker.StartSpan(ctx, telemetry.SpanArchive, "archive", filepath.Base(archivePath))
	defer doneArchive()

	perf := logging.StartOperation(logger, "process_archive")

	err := p.run(ctx, processingID, archivePath, logger)
	if err != nil {
		perf.EndWithError(ctx, err)
		if moveErr := p.mover.ToError(ctx, archivePath); moveErr != nil {
			logger.Warn(ctx, moveErr, "Archive could not be moved to error directory")
		}
		return err
	}

	perf.End(ctx)
	if moveErr := p.mover.ToArchive(ctx, archivePath); moveErr != nil {
		logger.Warn(ctx, moveErr, "Archive could not be moved to archive directory")
	}
	return nil
}

func (p *Processor) run(ctx context.Context, processingID, archivePath string, logger logging.Logger) error {
	doneExtract := p.tracker.StartSpan(ctx, telemetry.SpanExtract)
	contents, err := archive.Extract(archivePath)
	doneExtract()
	if err != nil {
		return err
	}

	doneParse := p.tracker.StartSpan(ctx, telemetry.SpanParse)
	bundle, err := parser.Parse(filepath.Base(archivePath), contents)
	doneParse()
	if err != nil {
		return err
	}

	logger.Info(ctx, "Archive parsed",
		"document_type", bundle.Meta.DocumentType,
		"debtors", bundle.Debtors.Len(),
		"declared_count", bundle.Meta.RecordCount)

	if bundle.Debtors.Len() == 0 {
		logger.Warn(ctx, nil, "Archive contains no debtor records")
		return nil
	}

	outputs, err := p.renderAll(ctx, processingID, archivePath, bundle)
	if err != nil {
		p.removeOutputs(ctx, outputs, logger)
		return err
	}

	logger.Info(ctx, "Archive processed", "outputs", len(outputs))
	return nil
}

// renderAll fans the debtor records out across a bounded worker set. Debtors
// within one archive are processed independently and concurrently; there is
// no output ordering across them. Returns the paths written so far, for
// cleanup when any debtor failed.
func (p *Processor) renderAll(
	ctx context.Context,
	processingID, archivePath string,
	bundle *types.Bundle,
) ([]string, error) {
	workers := p.cfg.Render.Workers
	if workers < 1 {
		workers = 1
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outputs  []string
		firstErr error
	)
	sem := make(chan struct{}, workers)

	for _, debtor := range bundle.Debtors.All() {
		wg.Add(1)
		sem <- struct{}{}
		go func(d *types.Debtor) {
			defer wg.Done()
			defer func() { <-sem }()

			written, err := p.renderDebtor(ctx, processingID, archivePath, bundle, d)

			mu.Lock()
			defer mu.Unlock()
			outputs = append(outputs, written...)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if err != nil {
				p.errs.Handle(ctx, err)
			}
		}(debtor)
	}
	wg.Wait()

	return outputs, firstErr
}

// renderDebtor resolves the template against one debtor joined with its
// treatment lines and the shared practitioner, renders the document, and
// writes it (plus the optional sidecar). Returns the paths it wrote.
func (p *Processor) renderDebtor(
	ctx context.Context,
	processingID, archivePath string,
	bundle *types.Bundle,
	debtor *types.Debtor,
) ([]string, error) {
	lines := bundle.Lines(debtor)

	root := map[string]interface{}{
		"meta":         bundle.Meta,
		"debtor":       debtor,
		"lines":        lines,
		"practitioner": bundle.Practitioner,
	}
	if bundle.Practitioner == nil {
		root["practitioner"] = &types.Practitioner{}
	}

	source := p.templates.Lookup(ctx, debtor.DocumentType)
	markup := p.engine.Resolve(source, root)

	document, err := p.orchestrator.Render(ctx, markup, p.assets)
	if err != nil {
		return nil, wrapDebtorError(err, archivePath, debtor.JoinKey)
	}

	documentPath := p.outputPath(archivePath, debtor)
	if err := os.MkdirAll(filepath.Dir(documentPath), 0755); err != nil {
		return nil, errors.NewIOError(errors.ErrCodeWriteFailed,
			"creating output directory", err).WithArchive(archivePath, debtor.JoinKey)
	}
	if err := os.WriteFile(documentPath, document, 0644); err != nil {
		return nil, errors.NewIOError(errors.ErrCodeWriteFailed,
			"writing rendered document", err).WithArchive(archivePath, debtor.JoinKey)
	}
	written := []string{documentPath}

	if p.cfg.Output.Sidecar {
		sidecarPath := documentPath + ".json"
		sidecar := newSidecar(processingID, filepath.Base(archivePath), documentPath, debtor, len(lines))
		if err := sidecar.write(sidecarPath); err != nil {
			return written, errors.NewIOError(errors.ErrCodeWriteFailed,
				"writing sidecar record", err).WithArchive(archivePath, debtor.JoinKey)
		}
		written = append(written, sidecarPath)
	}

	return written, nil
}

// outputPath builds `<archive-base>_<sanitized-identifier><ext>` under the
// output root. The invoice number identifies the document when present,
// otherwise the join key does.
func (p *Processor) outputPath(archivePath string, debtor *types.Debtor) string {
	base := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))

	id := debtor.InvoiceNumber
	if id == "" {
		id = debtor.JoinKey
	}

	return filepath.Join(p.cfg.Output.Root,
		base+"_"+sanitizeIdentifier(id)+p.cfg.Output.Extension)
}

func (p *Processor) removeOutputs(ctx context.Context, outputs []string, logger logging.Logger) {
	for _, path := range outputs {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn(ctx, err, "Partial output could not be removed", "path", path)
		}
	}
}

func wrapDebtorError(err error, archivePath, joinKey string) error {
	var pe *errors.PipelineError
	if stderrors.As(err, &pe) {
		return pe.WithArchive(filepath.Base(archivePath), joinKey)
	}
	return err
}

// sanitizeIdentifier keeps output filenames filesystem-safe: anything outside
// letters, digits, dot, dash, and underscore becomes an underscore.
func sanitizeIdentifier(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "record"
	}
	return b.String()
}
