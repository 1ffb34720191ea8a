// ABOUTME: Retainer-chain search: why is this object still alive, and who holds the most of it
// ABOUTME: Shortest chains over the inbound index, heaviest retainers explored first

package graph

import (
	"sort"

	"github.com/prateek/heaplens/snapshot"
)

// Path is a chain of addresses from a target object back to a root,
// target first.
type Path struct {
	Addrs []snapshot.Address
}

// RetainerPaths answers "why is this object still alive": up to maxPaths
// referrer chains from "from" back to addresses in roots, walked
// breadth-first over the inbound index. Each address is expanded at most
// once, so every returned chain is a shortest one and the chains reach
// pairwise-distinct roots; cycles fall out of the single-visit rule
// without any per-path bookkeeping. Referrers at the same depth are
// explored in descending retained-size order (ties by ascending
// address), so the first chain returned runs through the heaviest
// retainers — the one a leak hunt wants to read first. A nil retained
// table is allowed and degrades the ordering to ascending address.
func RetainerPaths(idx *InboundIndex, retained RetainedTable, roots []snapshot.Address, from snapshot.Address, maxPaths int) []Path {
	if maxPaths <= 0 {
		return nil
	}

	rootSet := make(map[snapshot.Address]bool, len(roots))
	for _, r := range roots {
		rootSet[r] = true
	}
	if rootSet[from] {
		return []Path{{Addrs: []snapshot.Address{from}}}
	}

	// parent[x] is the address one step closer to "from" in the BFS tree.
	parent := make(map[snapshot.Address]snapshot.Address)
	visited := map[snapshot.Address]bool{from: true}
	queue := []snapshot.Address{from}

	var result []Path
	for len(queue) > 0 && len(result) < maxPaths {
		cur := queue[0]
		queue = queue[1:]

		referrers := append([]snapshot.Address(nil), idx.Inbound(cur)...)
		sort.Slice(referrers, func(i, j int) bool {
			ri, rj := retained[referrers[i]], retained[referrers[j]]
			if ri != rj {
				return ri > rj
			}
			return referrers[i] < referrers[j]
		})

		for _, ref := range referrers {
			if visited[ref] {
				continue
			}
			visited[ref] = true
			parent[ref] = cur

			if rootSet[ref] {
				result = append(result, Path{Addrs: chainFrom(parent, ref, from)})
				if len(result) >= maxPaths {
					break
				}
				continue
			}
			queue = append(queue, ref)
		}
	}

	return result
}

// chainFrom reconstructs the target-first chain by walking parent
// pointers from the discovered root back down to the target.
func chainFrom(parent map[snapshot.Address]snapshot.Address, root, from snapshot.Address) []snapshot.Address {
	var up []snapshot.Address
	for cur := root; ; cur = parent[cur] {
		up = append(up, cur)
		if cur == from {
			break
		}
	}
	chain := make([]snapshot.Address, len(up))
	for i, a := range up {
		chain[len(up)-1-i] = a
	}
	return chain
}
