// ABOUTME: JSON stub parser for testing heap analysis algorithms
// ABOUTME: Reads a simple JSON format with objects and roots, kept as a test fixture format

package heapdump

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/prateek/heaplens/snapshot"
)

// JSONStub is a parser for JSON test dumps. It is not a production format:
// ContainerParser is the only decoder real snapshot producers emit.
// JSONStub survives as a hand-writable fixture format for tests.
type JSONStub struct{}

// jsonDump represents the JSON dump format. Roots is a flat address list;
// Parse wraps it into a single synthetic thread's locals since a Snapshot
// has no standalone root list.
type jsonDump struct {
	Objects []jsonObject       `json:"objects"`
	Roots   []snapshot.Address `json:"roots"`
}

// jsonObject represents an object in the JSON format
type jsonObject struct {
	Addr snapshot.Address   `json:"id"`
	Type string             `json:"type"`
	Size uint64             `json:"size"`
	Ptrs []snapshot.Address `json:"ptrs"`
}

func (p *JSONStub) Name() string { return "json" }

// Sniff accepts input that opens a JSON object mentioning an "objects"
// key somewhere in the preview. Deliberately loose: a fixture whose
// preview passes but whose body is broken JSON still fails in Parse with
// a real decode error, which is where a test wants to see it.
func (p *JSONStub) Sniff(preview []byte) bool {
	trimmed := bytes.TrimLeft(preview, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return bytes.Contains(trimmed, []byte(`"objects"`))
}

// firstSyntheticTypeAddr is chosen well above any plausible real object
// address a fixture author would type by hand (1, 2, 3, ...), so synthetic
// type addresses never collide with object addresses in the same fixture.
const firstSyntheticTypeAddr snapshot.Address = 1 << 48

// Parse reads the JSON dump and builds a Snapshot.
func (p *JSONStub) Parse(ctx context.Context, r io.Reader) (*snapshot.Snapshot, error) {
	var dump jsonDump

	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&dump); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	// Validate required fields
	for i, obj := range dump.Objects {
		if obj.Addr == 0 {
			return nil, fmt.Errorf("object at index %d missing ID", i)
		}
	}

	typeAddrs := make(map[string]snapshot.Address)
	var types []*snapshot.Type
	nextTypeAddr := firstSyntheticTypeAddr
	typeAddrFor := func(name string) snapshot.Address {
		if a, ok := typeAddrs[name]; ok {
			return a
		}
		a := nextTypeAddr
		nextTypeAddr++
		typeAddrs[name] = a
		types = append(types, &snapshot.Type{Addr: a, Name: name})
		return a
	}

	objects := make([]*snapshot.Object, 0, len(dump.Objects))
	for _, obj := range dump.Objects {
		objects = append(objects, &snapshot.Object{
			Addr:      obj.Addr,
			TypeAddr:  typeAddrFor(obj.Type),
			Size:      obj.Size,
			Referents: obj.Ptrs,
		})
	}

	var threads []*snapshot.Thread
	if len(dump.Roots) > 0 {
		locals := make(map[string]snapshot.Address, len(dump.Roots))
		for i, addr := range dump.Roots {
			locals[fmt.Sprintf("root%d", i)] = addr
		}
		threads = append(threads, &snapshot.Thread{
			Name:  "roots",
			Alive: true,
			Frames: []snapshot.Frame{
				{Function: "roots", Locals: locals},
			},
		})
	}

	return snapshot.New(nil, types, objects, threads), nil
}

// init registers the JSON parser
func init() {
	Register(&JSONStub{})
}
