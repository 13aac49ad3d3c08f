package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fakturo/fakturo/internal/archive"
	"github.com/fakturo/fakturo/internal/config"
	"github.com/fakturo/fakturo/internal/processor"
	"github.com/fakturo/fakturo/internal/renderer"
	"github.com/fakturo/fakturo/internal/telemetry"
	"github.com/fakturo/fakturo/internal/template"
	"github.com/fakturo/fakturo/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Watch the input directory and process archives as they arrive",
	Long: `Run the ingestion daemon: watch the input root for ready markers,
debounce and batch them, and process each archive end to end. Runs until
interrupted.

Examples:
  fakturo watch                       # Watch with settings from .fakturo.yml
  fakturo watch --log-level debug     # Watch with verbose logging
  FAKTURO_INPUT_ROOT=/srv/in fakturo watch`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
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

	ingest, err := watcher.New(&cfg.Input, proc.ProcessMarker, logger, tracker)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := ingest.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	fmt.Printf("Watching %s for %s markers (Ctrl+C to stop)\n",
		cfg.Input.Root, cfg.Input.MarkerExt)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	fmt.Println("Shutting down")
	cancel()
	return ingest.Stop()
}
