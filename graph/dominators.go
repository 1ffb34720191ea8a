// ABOUTME: Lengauer-Tarjan dominators over the dense-id CSR, with a precomputed predecessor list
// ABOUTME: semi/ancestor/best/samedom/bucket machinery, ported to array indices for scale

package graph

import (
	"context"

	"github.com/prateek/heaplens/snapshot"
)

// Dominators computes the immediate dominator of every object reachable
// from roots. idom is indexed by NodeID; idom[v] == -1 means v was never
// reached from roots (the super-root's own entry, idom[0], is always -1:
// the super-root has no dominator of its own).
//
// This is the classic Lengauer-Tarjan algorithm (semi/ancestor/best/
// samedom/bucket machinery) with two changes needed at heap-graph scale
// (10^5-10^7 nodes): predecessors come from the CSR's precomputed reverse
// adjacency instead of a full rescan of every object's referents per
// vertex processed, and the DFS numbering / path compression use an
// explicit stack instead of Go call recursion, since a heap's dominator
// tree can be as deep as it is wide (a long linked list, for instance)
// and Go stacks don't bound recursion depth checks until they've already
// grown very large.
func Dominators(ctx context.Context, csr *CSR, roots []snapshot.Address) ([]NodeID, error) {
	n := csr.N()

	rootIDs := make([]NodeID, 0, len(roots))
	rootChild := make([]bool, n+1)
	for _, a := range roots {
		id, ok := csr.id(a)
		if !ok {
			continue
		}
		if !rootChild[id] {
			rootChild[id] = true
			rootIDs = append(rootIDs, id)
		}
	}

	order, dfnum, parent := dfsPreorder(csr, rootIDs, n)

	semi := make([]NodeID, n+1)
	label := make([]NodeID, n+1)
	samedom := make([]NodeID, n+1)
	ancestor := make([]NodeID, n+1)
	idom := make([]NodeID, n+1)
	bucket := make([][]NodeID, n+1)
	for i := NodeID(0); i <= NodeID(n); i++ {
		semi[i] = i
		label[i] = i
		samedom[i] = i
		ancestor[i] = -1
		idom[i] = -1
	}

	var compress func(v NodeID)
	compress = func(v NodeID) {
		var path []NodeID
		for ancestor[ancestor[v]] != -1 {
			path = append(path, v)
			v = ancestor[v]
		}
		for i := len(path) - 1; i >= 0; i-- {
			node := path[i]
			anc := ancestor[node]
			if dfnum[semi[label[anc]]] < dfnum[semi[label[node]]] {
				label[node] = label[anc]
			}
			ancestor[node] = ancestor[anc]
		}
	}
	eval := func(v NodeID) NodeID {
		if ancestor[v] == -1 {
			return label[v]
		}
		compress(v)
		return label[v]
	}

	forEachPredecessor := func(w NodeID, fn func(v NodeID)) {
		for _, v := range csr.reverse(w) {
			fn(v)
		}
		if rootChild[w] {
			fn(superRoot)
		}
	}

	for i := len(order) - 1; i > 0; i-- {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, ErrCancelled
			}
		}
		w := order[i]
		p := parent[w]

		forEachPredecessor(w, func(v NodeID) {
			if dfnum[v] == -1 {
				return // predecessor unreachable from roots; contributes nothing
			}
			var u NodeID
			if dfnum[v] <= dfnum[w] {
				u = v
			} else {
				u = eval(v)
			}
			if dfnum[semi[u]] < dfnum[semi[w]] {
				semi[w] = semi[u]
			}
		})

		bucket[semi[w]] = append(bucket[semi[w]], w)
		ancestor[w] = p // link w into the forest under its DFS-tree parent

		for _, v := range bucket[p] {
			u := eval(v)
			if semi[u] == semi[v] {
				idom[v] = p
			} else {
				samedom[v] = u
			}
		}
		bucket[p] = nil
	}

	for i := 1; i < len(order); i++ {
		w := order[i]
		if samedom[w] != w {
			idom[w] = idom[samedom[w]]
		}
	}

	return idom, nil
}

// dfsPreorder walks the graph (synthetic root 0 with children rootIDs,
// every other node via csr.forward) using an explicit stack, returning
// preorder-visited ids, each id's dfs number (-1 if unreached), and each
// id's DFS-tree parent (-1 for the root or unreached nodes).
func dfsPreorder(csr *CSR, rootIDs []NodeID, n int) (order []NodeID, dfnum []int32, parent []NodeID) {
	dfnum = make([]int32, n+1)
	parent = make([]NodeID, n+1)
	for i := range dfnum {
		dfnum[i] = -1
		parent[i] = -1
	}
	order = make([]NodeID, 0, n+1)

	type frame struct {
		node NodeID
		next int
	}
	children := func(v NodeID) []NodeID {
		if v == superRoot {
			return rootIDs
		}
		return csr.forward(v)
	}

	dfnum[superRoot] = 0
	order = append(order, superRoot)
	stack := []frame{{superRoot, 0}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		kids := children(top.node)
		advanced := false
		for top.next < len(kids) {
			c := kids[top.next]
			top.next++
			if dfnum[c] == -1 {
				dfnum[c] = int32(len(order))
				order = append(order, c)
				parent[c] = top.node
				stack = append(stack, frame{c, 0})
				advanced = true
				break
			}
		}
		if !advanced && top.next >= len(kids) {
			stack = stack[:len(stack)-1]
		}
	}

	return order, dfnum, parent
}
