// ABOUTME: Pluggable decoder seam between on-disk dump formats and the heap model
// ABOUTME: A parser sniffs a preview of the input, then owns the full decode

package heapdump

import (
	"context"
	"io"

	"github.com/prateek/heaplens/snapshot"
)

// Parser decodes one on-disk dump format into a snapshot.
type Parser interface {
	// Name identifies the format in diagnostics and error messages.
	Name() string

	// Sniff reports whether preview — the first bytes of the input, at
	// most PreviewLen of them and possibly fewer for short files — looks
	// like this parser's format. It must decide from the preview alone.
	Sniff(preview []byte) bool

	// Parse decodes r, positioned at the start of the input. Honoring
	// ctx during the decode is the parser's responsibility.
	Parse(ctx context.Context, r io.Reader) (*snapshot.Snapshot, error)
}
