package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/fakturo/fakturo/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogTrackerEmitsSpan(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelDebug,
		Format: "json",
		Output: buf,
	})

	tracker := NewLogTracker(logger)
	done := tracker.StartSpan(context.Background(), SpanParse, "archive", "batch_001.zip")
	done()

	out := buf.String()
	assert.Contains(t, out, SpanParse)
	assert.Contains(t, out, "batch_001.zip")
	assert.Contains(t, out, "duration_ms")
}

func TestNoopTracker(t *testing.T) {
	done := Noop{}.StartSpan(context.Background(), SpanExtract)
	assert.NotPanics(t, done)
}

func TestRecorder(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()

	rec.StartSpan(ctx, SpanRenderItem, "joinKey", "INV123")()
	rec.StartSpan(ctx, SpanRenderItem)()
	rec.StartSpan(ctx, SpanArchive)()

	assert.Equal(t, 2, rec.Count(SpanRenderItem))
	assert.Equal(t, 1, rec.Count(SpanArchive))

	spans := rec.Spans()
	require.Len(t, spans, 3)
	assert.Equal(t, []interface{}{"joinKey", "INV123"}, spans[0].Tags)
}
