// ABOUTME: Builds the dense-id CSR adjacency once per snapshot
// ABOUTME: Degree counting and edge placement parallelize over disjoint id ranges

package graph

import (
	"math"
	"runtime"
	"sync"

	"github.com/prateek/heaplens/snapshot"
)

// csrParallelThreshold is the object count above which BuildCSR splits edge
// computation across a worker pool instead of running it on one goroutine.
const csrParallelThreshold = 1 << 16

// DefaultNodeCap is the largest object count the engine accepts unless a
// caller overrides it with WithNodeCap. It is the limit of a NodeID.
const DefaultNodeCap = math.MaxInt32

type buildConfig struct {
	nodeCap int
}

// BuildOption configures BuildCSR.
type BuildOption func(*buildConfig)

// WithNodeCap overrides the engine's node cap: BuildCSR fails with
// ErrGraphTooLarge when the snapshot holds more objects than this.
func WithNodeCap(n int) BuildOption {
	return func(c *buildConfig) { c.nodeCap = n }
}

// BuildCSR assigns a dense NodeID to every object address in snap and
// precomputes forward and reverse (predecessor) adjacency over those ids.
// The reverse adjacency is what lets Dominators look up a node's
// predecessors in O(degree) instead of rescanning every object's
// referents for each vertex processed.
func BuildCSR(snap *snapshot.Snapshot, opts ...BuildOption) (*CSR, error) {
	cfg := buildConfig{nodeCap: DefaultNodeCap}
	for _, opt := range opts {
		opt(&cfg)
	}

	n := snap.NumObjects()
	if n > cfg.nodeCap {
		return nil, ErrGraphTooLarge
	}

	addrs := make([]snapshot.Address, n+1) // addrs[0] unused
	index := make(map[snapshot.Address]NodeID, n)

	id := NodeID(1)
	for obj := range snap.Objects() {
		addrs[id] = obj.Addr
		index[obj.Addr] = id
		id++
	}

	csr := &CSR{addrs: addrs, index: index}

	edgeLists := make([][]NodeID, n+1)
	computeRange := func(lo, hi int) {
		for i := lo; i <= hi; i++ {
			entry := snap.Get(addrs[NodeID(i)])
			if entry.Kind != snapshot.EntryObject {
				continue
			}
			obj := entry.Obj
			list := make([]NodeID, 0, len(obj.Referents)+len(obj.Attributes)+len(obj.Elements))
			for _, t := range obj.Referents {
				if tid, ok := index[t]; ok {
					list = append(list, tid)
				}
			}
			for _, t := range obj.Attributes {
				if tid, ok := index[t]; ok {
					list = append(list, tid)
				}
			}
			for _, t := range obj.Elements {
				if tid, ok := index[t]; ok {
					list = append(list, tid)
				}
			}
			edgeLists[i] = list
		}
	}

	if n >= csrParallelThreshold {
		workers := runtime.GOMAXPROCS(0)
		if workers < 1 {
			workers = 1
		}
		chunk := (n + workers - 1) / workers
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			lo := 1 + w*chunk
			hi := lo + chunk - 1
			if lo > n {
				break
			}
			if hi > n {
				hi = n
			}
			wg.Add(1)
			go func(lo, hi int) {
				defer wg.Done()
				computeRange(lo, hi)
			}(lo, hi)
		}
		wg.Wait()
	} else {
		computeRange(1, n)
	}

	buildForward(csr, edgeLists)
	buildReverse(csr)
	return csr, nil
}

func buildForward(csr *CSR, edgeLists [][]NodeID) {
	n := csr.N()
	start := make([]int32, n+2)
	for i := 1; i <= n; i++ {
		start[i+1] = start[i] + int32(len(edgeLists[i]))
	}
	edges := make([]NodeID, start[n+1])
	for i := 1; i <= n; i++ {
		copy(edges[start[i]:], edgeLists[i])
	}
	csr.fwdStart = start
	csr.fwdEdges = edges
}

// buildReverse transposes the forward CSR into a predecessor CSR, the
// classic two-pass counting-sort construction: count in-degrees, prefix
// sum into offsets, then place.
func buildReverse(csr *CSR) {
	n := csr.N()
	indeg := make([]int32, n+2)
	for i := 1; i <= n; i++ {
		for _, to := range csr.forward(NodeID(i)) {
			indeg[to]++
		}
	}
	start := make([]int32, n+2)
	for i := 1; i <= n; i++ {
		start[i+1] = start[i] + indeg[i]
	}
	cursor := make([]int32, n+1)
	copy(cursor, start[:n+1])
	edges := make([]NodeID, start[n+1])
	for i := 1; i <= n; i++ {
		from := NodeID(i)
		for _, to := range csr.forward(from) {
			edges[cursor[to]] = from
			cursor[to]++
		}
	}
	csr.revStart = start
	csr.revEdges = edges
}
