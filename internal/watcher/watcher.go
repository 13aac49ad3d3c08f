// Package watcher converts filesystem activity under the input root into a
// reliable, rate-limited stream of ready markers.
//
// A marker is a zero-byte file whose extension marks its sibling archive as
// fully written. Marker events are debounced per path, coalesced into bounded
// batches, and dispatched to the processing handler by a pool of consumer
// workers. A fixed-interval fallback rescan re-lists the input tree and
// resubmits any marker it finds, because the notification mechanism is not
// assumed lossless; resubmission is idempotent since consumed markers are
// gone from disk.
package watcher

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fakturo/fakturo/internal/config"
	"github.com/fakturo/fakturo/internal/logging"
	"github.com/fakturo/fakturo/internal/telemetry"
)

// MarkerHandler processes one ready marker. The handler owns archive
// placement; the watcher only reports whether dispatch failed.
type MarkerHandler func(ctx context.Context, markerPath string) error

// IngestionWatcher drives the ingestion side of the pipeline.
type IngestionWatcher struct {
	cfg     *config.InputConfig
	watcher *fsnotify.Watcher
	handler MarkerHandler
	logger  logging.Logger
	tracker telemetry.Tracker

	// queue is the bounded marker batch queue
	queue chan string

	// mu guards the debounce timer table
	mu     sync.Mutex
	timers map[string]*time.Timer

	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a watcher over the configured input root.
func New(
	cfg *config.InputConfig,
	handler MarkerHandler,
	logger logging.Logger,
	tracker telemetry.Tracker,
) (*IngestionWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &IngestionWatcher{
		cfg:     cfg,
		watcher: fsw,
		handler: handler,
		logger:  logger.WithComponent("watcher"),
		tracker: tracker,
		queue:   make(chan string, cfg.QueueCapacity),
		timers:  make(map[string]*time.Timer),
	}, nil
}

// Start registers the recursive watch, schedules every pre-existing marker
// (guarded so repeated startup calls schedule each exactly once), and
// launches the event loop, the fallback rescan, and the batch consumers.
func (w *IngestionWatcher) Start(ctx context.Context) error {
	if err := w.addRecursive(ctx, w.cfg.Root); err != nil {
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)

	w.startOnce.Do(func() {
		w.scanTree(ctx, w.cfg.Root)
	})

	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.rescanLoop(ctx)

	workers := w.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.consume(ctx)
	}

	w.logger.Info(ctx, "Ingestion watcher started",
		"root", w.cfg.Root,
		"marker_ext", w.cfg.MarkerExt,
		"workers", workers)

	return nil
}

// Stop cancels pending debounce timers, stops accepting watch events, and
// waits for in-flight batch items to finish. Cancelled timers lose their
// work; the marker files still exist and the next startup scan or fallback
// rescan will catch them.
func (w *IngestionWatcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}

	w.mu.Lock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *IngestionWatcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if stderrors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were dropped; the full rescan repairs whatever
				// was missed before watching continues.
				w.logger.Warn(ctx, err, "Watch event overflow, rescanning input tree")
				w.scanTree(ctx, w.cfg.Root)
				continue
			}
			w.logger.Warn(ctx, err, "Watch error")
		}
	}
}

func (w *IngestionWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create == 0 {
			return
		}
		// New subtrees must be observed without restart, and markers that
		// landed before the watch existed must not be lost.
		if err := w.addRecursive(ctx, event.Name); err != nil {
			w.logger.Warn(ctx, err, "Could not watch new directory", "dir", event.Name)
		}
		w.scanTree(ctx, event.Name)
		return
	}

	if w.isMarker(event.Name, info.Size()) {
		w.schedule(ctx, event.Name)
	}
}

// isMarker reports whether a file is an actionable marker: zero bytes with
// the configured extension.
func (w *IngestionWatcher) isMarker(path string, size int64) bool {
	return size == 0 && filepath.Ext(path) == w.cfg.MarkerExt
}

// schedule gives the marker a single pending debounce timer; repeated events
// on the same path replace the timer instead of stacking work.
func (w *IngestionWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.enqueue(ctx, path)
	})

	w.logger.Debug(ctx, "Marker debouncing", "marker", path)
}

func (w *IngestionWatcher) enqueue(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.timers, path)
	w.mu.Unlock()

	select {
	case w.queue <- path:
		w.logger.Debug(ctx, "Marker queued", "marker", path)
	case <-ctx.Done():
	}
}

// consume pulls one marker, then drains additional ready markers
// non-blockingly up to the batch size, and processes the batch under one
// telemetry scope.
func (w *IngestionWatcher) consume(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case first := <-w.queue:
			batch := []string{first}
		drain:
			for len(batch) < w.cfg.BatchSize {
				select {
				case next := <-w.queue:
					batch = append(batch, next)
				default:
					break drain
				}
			}
			w.dispatchBatch(ctx, batch)
		}
	}
}

func (w *IngestionWatcher) dispatchBatch(ctx context.Context, batch []string) {
	done := w.tracker.StartSpan(ctx, telemetry.SpanBatch, "size", len(batch))
	defer done()

	for _, marker := range batch {
		// A marker consumed by an earlier duplicate submission is gone from
		// disk; skipping it keeps resubmission idempotent.
		if _, err := os.Stat(marker); err != nil {
			continue
		}

		w.logger.Info(ctx, "Marker dispatched", "marker", marker)
		if err := w.handler(ctx, marker); err != nil {
			w.logger.Error(ctx, err, "Marker processing failed", "marker", marker)
		}
	}
}

func (w *IngestionWatcher) rescanLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scanTree(ctx, w.cfg.Root)
		}
	}
}

// scanTree schedules every marker under root through the normal debounce
// path.
func (w *IngestionWatcher) scanTree(ctx context.Context, root string) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if w.isMarker(path, info.Size()) {
			w.schedule(ctx, path)
		}
		return nil
	})
	if err != nil {
		w.logger.Warn(ctx, err, "Input tree scan failed", "root", root)
	}
}

func (w *IngestionWatcher) addRecursive(ctx context.Context, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}
