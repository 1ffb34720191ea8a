// ABOUTME: Dense node ids and the compressed adjacency used by the retained-heap engine
// ABOUTME: Bridges snapshot.Address (the public identity) and array-indexable ids

package graph

import "github.com/prateek/heaplens/snapshot"

// NodeID is a dense, 1-based id assigned to every object address reachable
// through BuildCSR. Id 0 is reserved for the synthetic super-root that
// dominates every real root.
type NodeID int32

const superRoot NodeID = 0

// RetainedTable maps an object address to its retained size in bytes.
// Addresses absent from the table were unreachable from the root set the
// table was computed against.
type RetainedTable map[snapshot.Address]uint64

// CSR is the compressed sparse row adjacency for one snapshot's object
// graph: dense ids in, dense ids out, no map lookups on the hot path.
// Built once per snapshot and reused by both the whole-heap dominator
// computation and every per-thread reachability pass, with edges addressed
// by slice index directly through NodeID rather than by map lookup.
type CSR struct {
	addrs []snapshot.Address // id -> address; addrs[0] is unused
	index map[snapshot.Address]NodeID

	fwdStart []int32 // id -> start offset into fwdEdges
	fwdEdges []NodeID

	revStart []int32 // id -> start offset into revEdges (predecessors)
	revEdges []NodeID
}

// N is the number of real objects (ids 1..N); id 0 is the super-root.
func (c *CSR) N() int { return len(c.addrs) - 1 }

// Addr resolves a dense id back to its snapshot address. Id 0 has no
// address and Addr(0) is not meaningful.
func (c *CSR) Addr(id NodeID) snapshot.Address { return c.addrs[id] }

// id looks up the dense id for an address, returning (0, false) if the
// address never appeared in the object table (and so has no graph node).
func (c *CSR) id(a snapshot.Address) (NodeID, bool) {
	id, ok := c.index[a]
	return id, ok
}

func (c *CSR) forward(id NodeID) []NodeID {
	return c.fwdEdges[c.fwdStart[id]:c.fwdStart[id+1]]
}

func (c *CSR) reverse(id NodeID) []NodeID {
	return c.revEdges[c.revStart[id]:c.revStart[id+1]]
}
