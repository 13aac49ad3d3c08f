package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorFormat(t *testing.T) {
	cause := errors.New("boom")
	err := NewParseError(ErrCodeMetaMissing, "archive has no meta descriptor entry", cause).
		WithArchive("batch_001.zip", "").
		WithComponent("parser")

	msg := err.Error()
	assert.Contains(t, msg, "[ERR_META_MISSING]")
	assert.Contains(t, msg, "component:parser")
	assert.Contains(t, msg, "batch_001.zip")
	assert.Contains(t, msg, "boom")
}

func TestPipelineErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewIOError(ErrCodeWriteFailed, "writing output document", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestPipelineErrorIs(t *testing.T) {
	a := NewRenderError(ErrCodeRenderFailed, "render failed", nil)
	b := NewRenderError(ErrCodeRenderFailed, "different message", errors.New("x"))
	c := NewRenderError(ErrCodePermitTimeout, "permit", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestRecoverability(t *testing.T) {
	assert.True(t, IsRecoverable(NewTemplateError(ErrCodeTemplateFailed, "resolution failed", nil)))
	assert.False(t, IsRecoverable(NewParseError(ErrCodeNoDataFormat, "no data format", nil)))
	assert.False(t, IsRecoverable(errors.New("plain")))
}

func TestClassification(t *testing.T) {
	parse := ErrMetaMissing("a.zip")
	render := ErrPermitTimeout(context.DeadlineExceeded)

	assert.True(t, IsParseError(parse))
	assert.False(t, IsParseError(render))
	assert.True(t, IsRenderError(render))

	// Classification survives wrapping.
	wrapped := fmt.Errorf("processing archive: %w", parse)
	assert.True(t, IsParseError(wrapped))
}

func TestWithContext(t *testing.T) {
	err := ErrNoDataFormat("b.zip").WithContext("entries", 3)

	require.NotNil(t, err.Context)
	assert.Equal(t, 3, err.Context["entries"])
	assert.Equal(t, "b.zip", err.Archive)
}

type captureLogger struct {
	errored int
	warned  int
}

func (c *captureLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	c.errored++
}

func (c *captureLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	c.warned++
}

func TestErrorHandlerRouting(t *testing.T) {
	logger := &captureLogger{}
	handler := NewErrorHandler(logger)
	ctx := context.Background()

	handler.Handle(ctx, nil)
	handler.Handle(ctx, NewTemplateError(ErrCodeTemplateFailed, "degraded", nil))
	handler.Handle(ctx, ErrMetaMissing("a.zip"))
	handler.Handle(ctx, errors.New("plain"))

	assert.Equal(t, 1, logger.warned)
	assert.Equal(t, 2, logger.errored)
}
