package wire

import "errors"

// ErrMalformed is returned when bytes violate the wire grammar: a bad
// length, a truncated payload, invalid UTF-8, or a magnitude encoding longer
// than MaxIntBytes.
var ErrMalformed = errors.New("wire: malformed value")

// ErrUnknownTag is returned when a tag byte does not match any known Tag.
var ErrUnknownTag = errors.New("wire: unknown tag")
