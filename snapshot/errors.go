package snapshot

import "errors"

// ErrMalformedSnapshot means the bytes violate the container grammar: a
// bad magic, a truncated section, an invalid length, or a malformed wire
// value underneath.
var ErrMalformedSnapshot = errors.New("snapshot: malformed snapshot")

// ErrUnsupportedVersion means the container's version tag is newer than
// this implementation understands.
var ErrUnsupportedVersion = errors.New("snapshot: unsupported version")

// ErrCancelled means a caller-supplied context was cancelled during load.
var ErrCancelled = errors.New("snapshot: load cancelled")
