// ABOUTME: Sorted, deduplicated inbound-reference index
// ABOUTME: Built once from the CSR's precomputed predecessor lists

package graph

import (
	"sort"

	"github.com/prateek/heaplens/snapshot"
)

// InboundIndex answers "what points at this address": a compact sorted,
// deduplicated vector per address, built once from the CSR's precomputed
// predecessor lists. An object that references the same target more than
// once contributes only a single inbound entry, and every vector is
// sorted so repeated queries are cheap and deterministic.
type InboundIndex struct {
	by map[snapshot.Address][]snapshot.Address
}

// BuildInboundIndex computes the inbound index for every object with at
// least one referrer.
func BuildInboundIndex(csr *CSR) *InboundIndex {
	n := csr.N()
	by := make(map[snapshot.Address][]snapshot.Address, n)

	for v := 1; v <= n; v++ {
		preds := csr.reverse(NodeID(v))
		if len(preds) == 0 {
			continue
		}
		seen := make(map[NodeID]struct{}, len(preds))
		addrs := make([]snapshot.Address, 0, len(preds))
		for _, p := range preds {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			addrs = append(addrs, csr.Addr(p))
		}
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
		by[csr.Addr(NodeID(v))] = addrs
	}

	return &InboundIndex{by: by}
}

// Inbound returns the sorted, deduplicated list of addresses that
// reference addr, or nil if nothing does.
func (idx *InboundIndex) Inbound(addr snapshot.Address) []snapshot.Address {
	return idx.by[addr]
}
