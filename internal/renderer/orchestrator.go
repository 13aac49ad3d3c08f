// Package renderer wraps the external document renderer with admission
// control, buffer reuse, and batch-level timing diagnostics.
//
// The orchestrator owns a counting permit pool that bounds concurrent render
// operations independently of the worker count, a pool of reusable output
// buffers sized from a running estimate of typical document size, and an
// idle-threshold burst tracker that logs one timing record per burst of
// renders instead of one per item.
package renderer

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fakturo/fakturo/internal/config"
	"github.com/fakturo/fakturo/internal/errors"
	"github.com/fakturo/fakturo/internal/logging"
	"github.com/fakturo/fakturo/internal/telemetry"
)

// initialBufferBytes seeds a fresh output buffer before any size estimate
// exists.
const initialBufferBytes = 4 * 1024

// Assets are the embeddable resources handed to the document renderer
// alongside the resolved markup.
type Assets struct {
	// Fonts maps font family names to font file bytes
	Fonts map[string][]byte
	// ColorProfile is the color-profile asset, may be nil
	ColorProfile []byte
}

// DocumentRenderer is the external render collaborator. It converts resolved
// markup into final document bytes written to out. Implementations report
// failures as plain errors; the orchestrator owns their translation into the
// pipeline's typed errors.
type DocumentRenderer interface {
	Render(ctx context.Context, markup string, assets *Assets, out *bytes.Buffer) error
}

// Orchestrator bounds and instruments calls to a DocumentRenderer.
type Orchestrator struct {
	// renderer is the external collaborator producing document bytes
	renderer DocumentRenderer
	// permits is the counting pool capping concurrent renders
	permits chan struct{}
	// permitTimeout bounds the wait for a permit
	permitTimeout time.Duration
	// reuseBuffers enables the output buffer pool
	reuseBuffers bool
	// maxBufferBytes caps the capacity a returned buffer may retain
	maxBufferBytes int
	// idleThreshold is the quiet period that closes a burst
	idleThreshold time.Duration

	buffers  sync.Pool
	sizeHint atomic.Int64
	active   atomic.Int32

	logger  logging.Logger
	tracker telemetry.Tracker

	// mu guards the burst bookkeeping below
	mu         sync.Mutex
	inflight   int
	burstItems int
	burstStart time.Time
	lastFinish time.Time
	idleCheck  *time.Timer
}

// NewOrchestrator creates an orchestrator around the given collaborator.
func NewOrchestrator(
	renderer DocumentRenderer,
	cfg *config.RenderConfig,
	logger logging.Logger,
	tracker telemetry.Tracker,
) *Orchestrator {
	o := &Orchestrator{
		renderer:       renderer,
		permits:        make(chan struct{}, cfg.MaxConcurrent),
		permitTimeout:  cfg.PermitTimeout,
		reuseBuffers:   cfg.ReuseBuffers,
		maxBufferBytes: cfg.MaxBufferBytes,
		idleThreshold:  cfg.IdleThreshold,
		logger:         logger.WithComponent("renderer"),
		tracker:        tracker,
	}
	o.buffers.New = func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, initialBufferBytes))
	}

	return o
}

// Render converts resolved markup into final document bytes under the permit
// cap. The returned slice is owned by the caller. Any collaborator failure,
// permit timeout, or cancellation comes back as a typed render error.
func (o *Orchestrator) Render(ctx context.Context, markup string, assets *Assets) ([]byte, error) {
	if err := o.acquirePermit(ctx); err != nil {
		return nil, err
	}
	defer func() { <-o.permits }()

	o.active.Add(1)
	defer o.active.Add(-1)

	o.noteStart()
	defer o.noteFinish()

	done := o.tracker.StartSpan(ctx, telemetry.SpanRenderItem, "markup_bytes", len(markup))
	defer done()

	buf := o.getBuffer()
	defer o.putBuffer(buf)

	if err := o.renderer.Render(ctx, markup, assets, buf); err != nil {
		return nil, errors.NewRenderError(errors.ErrCodeRenderFailed,
			"document renderer failed", err)
	}

	o.sizeHint.Store(int64(buf.Len()))

	// The buffer goes back to the pool, so the result must be a copy.
	document := make([]byte, buf.Len())
	copy(document, buf.Bytes())

	return document, nil
}

// ActiveRenders reports how many renders currently hold a permit.
func (o *Orchestrator) ActiveRenders() int {
	return int(o.active.Load())
}

func (o *Orchestrator) acquirePermit(ctx context.Context) error {
	select {
	case o.permits <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(o.permitTimeout)
	defer timer.Stop()

	select {
	case o.permits <- struct{}{}:
		return nil
	case <-timer.C:
		return errors.ErrPermitTimeout(nil)
	case <-ctx.Done():
		return errors.NewRenderError(errors.ErrCodeRenderFailed,
			"interrupted while waiting for render permit", ctx.Err())
	}
}

func (o *Orchestrator) getBuffer() *bytes.Buffer {
	if !o.reuseBuffers {
		buf := bytes.NewBuffer(nil)
		if hint := o.sizeHint.Load(); hint > 0 {
			buf.Grow(int(hint))
		}
		return buf
	}

	buf := o.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	if hint := o.sizeHint.Load(); hint > 0 && int64(buf.Cap()) < hint {
		buf.Grow(int(hint) - buf.Cap())
	}

	return buf
}

func (o *Orchestrator) putBuffer(buf *bytes.Buffer) {
	if !o.reuseBuffers {
		return
	}
	// Oversized buffers are discarded to bound retained memory.
	if buf.Cap() > o.maxBufferBytes {
		return
	}
	o.buffers.Put(buf)
}

// noteStart opens a burst when none is active and cancels a still-pending
// idle check so the burst log cannot fire while work is in flight.
func (o *Orchestrator) noteStart() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.idleCheck != nil {
		o.idleCheck.Stop()
		o.idleCheck = nil
	}
	if o.inflight == 0 && o.burstItems == 0 {
		o.burstStart = time.Now()
	}
	o.inflight++
}

// noteFinish records the finish time and schedules the idle check. Every
// finish replaces the pending check, so the burst log fires once, after the
// burst truly goes idle.
func (o *Orchestrator) noteFinish() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.inflight--
	o.burstItems++
	o.lastFinish = time.Now()

	if o.idleCheck != nil {
		o.idleCheck.Stop()
	}
	o.idleCheck = time.AfterFunc(o.idleThreshold, o.flushBurst)
}

func (o *Orchestrator) flushBurst() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.inflight > 0 || o.burstItems == 0 {
		return
	}

	o.logger.Info(context.Background(), "Render burst complete",
		"items", o.burstItems,
		"duration_ms", o.lastFinish.Sub(o.burstStart).Milliseconds())

	o.burstItems = 0
	o.burstStart = time.Time{}
	o.lastFinish = time.Time{}
	o.idleCheck = nil
}
