package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fakturo/fakturo/internal/archive"
	"github.com/fakturo/fakturo/internal/config"
	"github.com/fakturo/fakturo/internal/parser"
	"github.com/fakturo/fakturo/internal/processor"
	"github.com/fakturo/fakturo/internal/renderer"
	"github.com/fakturo/fakturo/internal/telemetry"
	"github.com/fakturo/fakturo/internal/template"
	"github.com/fakturo/fakturo/internal/types"
)

var processDryRun bool

var processCmd = &cobra.Command{
	Use:     "process <archive>",
	Aliases: []string{"p"},
	Short:   "Process one archive and exit",
	Long: `Process a single archive end to end without running the watcher:
extract, parse, render one document per debtor, and move the archive to the
archive or error directory.

With --dry-run the archive is only extracted and parsed; a summary of the
records is printed and nothing is written or moved.

Examples:
  fakturo process input/batch.zip
  fakturo process input/batch.zip --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false,
		"parse and report without rendering, writing, or moving anything")
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	archivePath := args[0]

	if processDryRun {
		return dryRun(cmd, archivePath)
	}

	logger, closeLogger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = closeLogger() }()

	tracker := telemetry.NewLogTracker(logger)
	orchestrator := renderer.NewOrchestrator(
		renderer.NewMarkupRenderer(), &cfg.Render, logger, tracker)
	mover := archive.NewMover(cfg.Output.ArchiveDir, cfg.Output.ErrorDir, logger)
	store := processor.NewTemplateStore(&cfg.Templates, logger)

	proc := processor.New(cfg, template.NewEngine(), store, orchestrator, mover,
		nil, logger, tracker)

	if err := proc.ProcessArchive(cmd.Context(), archivePath); err != nil {
		return fmt.Errorf("archive failed: %w", err)
	}

	fmt.Printf("Processed %s\n", filepath.Base(archivePath))
	return nil
}

// dryRun extracts and parses the archive, then prints what a full run would
// render.
func dryRun(cmd *cobra.Command, archivePath string) error {
	contents, err := archive.Extract(archivePath)
	if err != nil {
		return err
	}

	bundle, err := parser.Parse(filepath.Base(archivePath), contents)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Archive:        %s\n", filepath.Base(archivePath))
	fmt.Fprintf(out, "Document type:  %s\n", bundle.Meta.DocumentType)
	fmt.Fprintf(out, "Declared count: %d\n", bundle.Meta.RecordCount)
	fmt.Fprintf(out, "Debtors:        %d\n", bundle.Debtors.Len())
	if bundle.Practitioner != nil {
		fmt.Fprintf(out, "Practitioner:   %s\n", bundle.Practitioner.Name)
	}

	for _, debtor := range bundle.Debtors.All() {
		fmt.Fprintf(out, "  %s  %-24s lines=%d  total=%s\n",
			debtor.InvoiceNumber, debtor.PatientName,
			len(bundle.Lines(debtor)), types.FormatCents(debtor.TotalCents))
	}

	return nil
}
