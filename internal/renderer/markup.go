package renderer

import (
	"bytes"
	"context"
)

// MarkupRenderer is a DocumentRenderer that emits the resolved markup itself
// as the final document. It backs dry runs and environments without a
// document backend; the output extension should then be markup-appropriate.
type MarkupRenderer struct{}

// NewMarkupRenderer creates the pass-through renderer.
func NewMarkupRenderer() *MarkupRenderer {
	return &MarkupRenderer{}
}

// Render implements DocumentRenderer.
func (*MarkupRenderer) Render(ctx context.Context, markup string, assets *Assets, out *bytes.Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := out.WriteString(markup)
	return err
}
