// ABOUTME: Core data types for one loaded heap snapshot
// ABOUTME: Object, Type, Thread, Frame, and the tagged Entry variant

package snapshot

// Address identifies one object within one snapshot. Addresses are unique;
// absence of an address from the object table means the object was never
// traced by the producer. Address 0 is reserved as the null address: a
// producer writes it where a slot holds no target (an unset local, an
// object with no type), so it never identifies an object and is not an
// edge for reachability, unknown-tracking, or dangling diagnostics.
type Address uint64

// NullAddress is the reserved "no target" value.
const NullAddress Address = 0

// Object is one entry in the object table. Referents, Attributes, and
// Elements may each reference addresses that are not themselves keys in
// the object table — those are resolved to Unknown at lookup time, never
// at parse time.
//
// Attributes and Elements model the different kinds of entries in the
// snapshot (plain object / container-with-elements / instance-with-
// attributes) as a tagged variant carrying only populated fields, rather
// than as a type hierarchy: a plain object has both nil, a container has
// only Elements, an instance has only Attributes.
type Object struct {
	Addr       Address
	TypeAddr   Address
	Size       uint64
	Str        string // producer-truncated string representation
	HasStr     bool
	Referents  []Address // outbound edges, producer order, may repeat
	Attributes map[string]Address
	Elements   []Address
}

// Type is one entry in the type table.
type Type struct {
	Addr Address
	Name string
}

// Frame is one stack frame, outermost-caller first within a Thread's Frames.
type Frame struct {
	File     string
	Line     uint64
	Function string
	Locals   map[string]Address
}

// Thread is one entry in the thread table.
type Thread struct {
	Name   string
	Alive  bool
	Daemon bool
	Frames []Frame
}

// EntryKind distinguishes what Snapshot.Get found for an address.
type EntryKind int

const (
	// EntryAbsent means the address is truly unknown to the snapshot: it
	// was never dumped and never referenced as an edge target either.
	EntryAbsent EntryKind = iota
	// EntryObject means the address is a key in the object table.
	EntryObject
	// EntryUnknown means the address was referenced as an edge target
	// (a referent, attribute target, element, frame local, or an object's
	// type address) but never dumped. It
	// contributes zero shallow size and has no outgoing edges.
	EntryUnknown
)

// Entry is the result of Snapshot.Get: either a live Object, the Unknown
// sentinel, or (Kind == EntryAbsent) nothing at all.
type Entry struct {
	Kind EntryKind
	Obj  *Object // valid only when Kind == EntryObject
}
