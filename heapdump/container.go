// ABOUTME: Production parser wrapping the gzip+tagged-section container format
// ABOUTME: Detection is the gzip magic; decoding is delegated to snapshot.Load

package heapdump

import (
	"bytes"
	"context"
	"io"

	"github.com/prateek/heaplens/snapshot"
)

var gzipMagic = []byte{0x1f, 0x8b}

// ContainerParser recognizes and decodes the on-disk container format: a
// gzip stream wrapping the PYHP magic, version, and tagged sections. It
// is the one production decoder in this registry; everything else here
// (JSONStub) exists only as a test fixture format.
type ContainerParser struct{}

func (p *ContainerParser) Name() string { return "container" }

// Sniff matches the gzip magic bytes. It does not need to look any
// deeper: a false positive here just means snapshot.Load fails on its
// own magic/version check inside Parse, same as any other malformed
// input.
func (p *ContainerParser) Sniff(preview []byte) bool {
	return bytes.HasPrefix(preview, gzipMagic)
}

// Parse decodes r as a snapshot container.
func (p *ContainerParser) Parse(ctx context.Context, r io.Reader) (*snapshot.Snapshot, error) {
	return snapshot.Load(ctx, r)
}

func init() {
	Register(&ContainerParser{})
}
