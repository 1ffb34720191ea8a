// ABOUTME: Generic recursive Value tree used by List/StringMap/AddressMap
// ABOUTME: Lets a Header or Objects section hold arbitrarily nested wire values

package wire

// Addr is a 64-bit snapshot object address. It is a distinct type from a
// plain uint64 so Writer.WriteValue can tell "this is an address, encode
// it with the fixed 8-byte Address primitive" from "this is a counted
// integer, encode it with the variable-length Uint primitive".
type Addr uint64

// Value is any value representable in the container's typed-value format:
// nil, bool, uint64, int64, string, Addr, []Value, map[string]Value, or
// map[Addr]Value. It is what the Header section (and any other free-form
// map) is built from.
type Value interface{}
