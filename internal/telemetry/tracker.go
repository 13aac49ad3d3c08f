// Package telemetry provides the diagnostics collaborator the pipeline opens
// named, tagged timing scopes against. The default implementation logs span
// durations; a no-op implementation is available for tests and callers that
// do not collect diagnostics.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/fakturo/fakturo/internal/logging"
)

// Tracker opens timing scopes around major pipeline phases.
type Tracker interface {
	// StartSpan opens a named scope with alternating key/value tags and
	// returns a function that closes it.
	StartSpan(ctx context.Context, name string, tags ...interface{}) func()
}

// Phase names used across the pipeline.
const (
	SpanExtract    = "archive.extract"
	SpanParse      = "archive.parse"
	SpanRenderItem = "render.item"
	SpanArchive    = "archive.total"
	SpanBatch      = "ingest.batch"
)

// LogTracker logs span durations through the pipeline logger.
type LogTracker struct {
	logger logging.Logger
}

// NewLogTracker creates a tracker that reports spans as log records.
func NewLogTracker(logger logging.Logger) *LogTracker {
	return &LogTracker{logger: logger.WithComponent("telemetry")}
}

// StartSpan implements Tracker.
func (t *LogTracker) StartSpan(ctx context.Context, name string, tags ...interface{}) func() {
	start := time.Now()

	return func() {
		duration := time.Since(start)
		fields := append([]interface{}{
			"span", name,
			"duration_ms", duration.Milliseconds(),
		}, tags...)
		t.logger.Debug(ctx, "Span completed", fields...)
	}
}

// Noop is a Tracker that discards every span.
type Noop struct{}

// StartSpan implements Tracker.
func (Noop) StartSpan(ctx context.Context, name string, tags ...interface{}) func() {
	return func() {}
}

// Recorder is a Tracker for tests that remembers every closed span.
type Recorder struct {
	mu    sync.Mutex
	spans []RecordedSpan
}

// RecordedSpan is one closed span captured by a Recorder.
type RecordedSpan struct {
	Name     string
	Tags     []interface{}
	Duration time.Duration
}

// StartSpan implements Tracker.
func (r *Recorder) StartSpan(ctx context.Context, name string, tags ...interface{}) func() {
	start := time.Now()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.spans = append(r.spans, RecordedSpan{
			Name:     name,
			Tags:     tags,
			Duration: time.Since(start),
		})
	}
}

// Spans returns the closed spans in completion order.
func (r *Recorder) Spans() []RecordedSpan {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RecordedSpan, len(r.spans))
	copy(out, r.spans)
	return out
}

// Count returns how many spans with the given name have closed.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.spans {
		if s.Name == name {
			n++
		}
	}
	return n
}
