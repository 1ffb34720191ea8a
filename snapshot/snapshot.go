// ABOUTME: Immutable in-memory heap model built by Load from a snapshot file
// ABOUTME: Object/type/thread tables plus O(1) lookup

package snapshot

import (
	"context"
	"fmt"
	"iter"
	"sort"

	"github.com/prateek/heaplens/wire"
)

// Snapshot is the tuple (version, header metadata, type table, object
// table, thread list). It is immutable once returned by Load: nothing in
// this package exposes a mutator on a *Snapshot after construction.
type Snapshot struct {
	Version uint32
	Header  map[string]wire.Value

	objects map[Address]*Object
	types   map[Address]*Type
	threads []*Thread

	objectsSorted []*Object // by address, built once at freeze time
	typesSorted   []*Type

	unknown     map[Address]struct{} // seen only as edge/local targets
	diagnostics Diagnostics
}

// Objects iterates every object in the table in ascending address order.
func (s *Snapshot) Objects() iter.Seq[*Object] {
	return func(yield func(*Object) bool) {
		for _, obj := range s.objectsSorted {
			if !yield(obj) {
				return
			}
		}
	}
}

// Types iterates every type in the table in ascending address order.
func (s *Snapshot) Types() iter.Seq[*Type] {
	return func(yield func(*Type) bool) {
		for _, t := range s.typesSorted {
			if !yield(t) {
				return
			}
		}
	}
}

// Threads returns the thread list in producer order.
func (s *Snapshot) Threads() []*Thread { return s.threads }

// NumObjects is len(Objects()).
func (s *Snapshot) NumObjects() int { return len(s.objects) }

// Diagnostics returns the non-fatal integrity findings collected at load
// time (dangling references, missing types, duplicate addresses).
func (s *Snapshot) Diagnostics() Diagnostics { return s.diagnostics }

// Get resolves an address to an Entry: EntryObject if it's a key in the
// object table, EntryUnknown if it was only ever seen as an edge or local
// target, EntryAbsent otherwise.
func (s *Snapshot) Get(addr Address) Entry {
	if obj, ok := s.objects[addr]; ok {
		return Entry{Kind: EntryObject, Obj: obj}
	}
	if _, ok := s.unknown[addr]; ok {
		return Entry{Kind: EntryUnknown}
	}
	return Entry{Kind: EntryAbsent}
}

// ShallowSize is 0 for unknown or absent addresses, otherwise the object's
// stored shallow size.
func (s *Snapshot) ShallowSize(addr Address) uint64 {
	if obj, ok := s.objects[addr]; ok {
		return obj.Size
	}
	return 0
}

// Referents preserves producer order and may contain duplicates; it is
// empty for unknown or absent addresses.
func (s *Snapshot) Referents(addr Address) []Address {
	if obj, ok := s.objects[addr]; ok {
		return obj.Referents
	}
	return nil
}

// TypeName resolves a type address to its human-readable name, or ""
// if the address is not a key in the type table.
func (s *Snapshot) TypeName(addr Address) string {
	if t, ok := s.types[addr]; ok {
		return t.Name
	}
	return ""
}

// New builds a Snapshot directly from in-memory tables, running the same
// integrity-resolution pass Load runs after decoding (missing-type
// substitution, dangling-reference counting, duplicate-address counting
// against whichever entries are last in the input slices). It exists so
// callers that already have parsed heap data in memory — tests, the cache
// warm path, synthetic fixtures — don't have to round-trip through the
// container encoding just to get a *Snapshot.
func New(header map[string]wire.Value, types []*Type, objects []*Object, threads []*Thread) *Snapshot {
	b := newBuilder()
	if header != nil {
		b.snap.Header = header
	}
	for _, t := range types {
		if _, dup := b.snap.types[t.Addr]; dup {
			b.snap.diagnostics.recordDupType()
		}
		b.snap.types[t.Addr] = t
	}
	for _, obj := range objects {
		if _, dup := b.snap.objects[obj.Addr]; dup {
			b.snap.diagnostics.recordDupObject()
		}
		b.snap.objects[obj.Addr] = obj
		b.addTarget(obj.TypeAddr)
		for _, ref := range obj.Referents {
			b.addTarget(ref)
		}
		for _, v := range obj.Attributes {
			b.addTarget(v)
		}
		for _, e := range obj.Elements {
			b.addTarget(e)
		}
	}
	b.snap.threads = threads
	for _, th := range threads {
		for _, f := range th.Frames {
			for _, v := range f.Locals {
				b.addTarget(v)
			}
		}
	}
	return b.finalize()
}

// Progress is called after each top-level section is consumed during Load.
// Units are producer-chosen: here, bytes read for that section.
type Progress func(section string, bytesRead int64)

type loadConfig struct {
	progress Progress
}

// LoadOption configures Load.
type LoadOption func(*loadConfig)

// WithProgress registers a callback invoked once per section.
func WithProgress(p Progress) LoadOption {
	return func(c *loadConfig) { c.progress = p }
}

// builder accumulates a snapshot while sections stream in; finalize
// freezes it once all sections (or EOF) have been consumed.
type builder struct {
	snap        *Snapshot
	targetsSeen map[Address]struct{} // type addrs/referents/attrs/elements/locals
}

func newBuilder() *builder {
	return &builder{
		snap: &Snapshot{
			Header:  make(map[string]wire.Value),
			objects: make(map[Address]*Object),
			types:   make(map[Address]*Type),
		},
		targetsSeen: make(map[Address]struct{}),
	}
}

func (b *builder) addTarget(a Address) {
	if a == NullAddress {
		return // "no target" slot, not an edge
	}
	b.targetsSeen[a] = struct{}{}
}

// finalize resolves dangling references and missing types, then sorts the
// object/type tables for deterministic iteration.
func (b *builder) finalize() *Snapshot {
	s := b.snap

	for addr := range b.targetsSeen {
		if _, ok := s.objects[addr]; !ok {
			if s.unknown == nil {
				s.unknown = make(map[Address]struct{})
			}
			s.unknown[addr] = struct{}{}
		}
	}

	dangling := func(a Address) {
		if a == NullAddress {
			return
		}
		if _, ok := s.objects[a]; !ok {
			s.diagnostics.recordDangling()
		}
	}
	for _, obj := range s.objects {
		for _, r := range obj.Referents {
			dangling(r)
		}
		for _, v := range obj.Attributes {
			dangling(v)
		}
		for _, e := range obj.Elements {
			dangling(e)
		}
		if _, ok := s.types[obj.TypeAddr]; !ok && obj.TypeAddr != NullAddress {
			s.diagnostics.recordMissingType()
			s.types[obj.TypeAddr] = &Type{Addr: obj.TypeAddr, Name: "unknown-type"}
		}
	}

	s.objectsSorted = make([]*Object, 0, len(s.objects))
	for _, obj := range s.objects {
		s.objectsSorted = append(s.objectsSorted, obj)
	}
	sort.Slice(s.objectsSorted, func(i, j int) bool { return s.objectsSorted[i].Addr < s.objectsSorted[j].Addr })

	s.typesSorted = make([]*Type, 0, len(s.types))
	for _, t := range s.types {
		s.typesSorted = append(s.typesSorted, t)
	}
	sort.Slice(s.typesSorted, func(i, j int) bool { return s.typesSorted[i].Addr < s.typesSorted[j].Addr })

	return s
}

// checkCancelled is polled at coarse granularity, once per section.
func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	default:
		return nil
	}
}
