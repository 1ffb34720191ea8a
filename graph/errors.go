package graph

import "errors"

// ErrGraphTooLarge means the snapshot's object count exceeds the engine's
// node cap (default 1<<31 - 1, the limit of a NodeID).
var ErrGraphTooLarge = errors.New("graph: object count exceeds engine node cap")

// ErrCancelled means a caller-supplied context was cancelled mid-computation.
var ErrCancelled = errors.New("graph: computation cancelled")
