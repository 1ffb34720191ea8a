// ABOUTME: Registry of dump-format parsers and the Open entry point
// ABOUTME: Sniffs a bounded preview against each parser, then replays it into the winner

package heapdump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/prateek/heaplens/snapshot"
)

// ErrNoParser means no registered parser recognized the input's format.
var ErrNoParser = errors.New("heapdump: no parser recognized the dump format")

// PreviewLen is how many leading bytes Open reads for format sniffing.
// Every registered format is identifiable well within this much.
const PreviewLen = 4096

type parserRegistry struct {
	mu      sync.RWMutex
	parsers []Parser
}

// all returns a copy of the parser list, so Open never holds the
// registry lock while a parser decodes.
func (reg *parserRegistry) all() []Parser {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return append([]Parser(nil), reg.parsers...)
}

var registry = &parserRegistry{}

// Register adds a parser. Typically called from a parser's init;
// safe for concurrent use.
func Register(p Parser) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.parsers = append(registry.parsers, p)
}

// Open reads a heap dump from r, picking the first registered parser
// whose Sniff accepts a preview of the input. The preview bytes are
// replayed in front of the remaining stream, so the winning parser sees
// the input from its start. Cancellation is checked between parser
// trials; once a parser is chosen, ctx is handed to its Parse. When
// nothing matches, the error names every parser that was tried.
func Open(ctx context.Context, r io.Reader) (*snapshot.Snapshot, error) {
	preview := make([]byte, PreviewLen)
	n, err := io.ReadFull(r, preview)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	preview = preview[:n]

	var rejected []string
	for _, p := range registry.all() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !p.Sniff(preview) {
			rejected = append(rejected, p.Name())
			continue
		}
		return p.Parse(ctx, io.MultiReader(bytes.NewReader(preview), r))
	}

	if len(rejected) == 0 {
		return nil, ErrNoParser
	}
	return nil, fmt.Errorf("%w (tried %s)", ErrNoParser, strings.Join(rejected, ", "))
}
