// ABOUTME: Dominator-tree queries over a computed idom array
// ABOUTME: Path-to-root and dominance checks, indexed by dense NodeID

package graph

import "github.com/prateek/heaplens/snapshot"

// DominatorPath returns the chain of addresses from addr up to (but not
// including) the synthetic root, following immediate dominators: addr
// itself first, then its dominator, then its dominator's dominator, and
// so on. Returns nil if addr was never reached by the dominator
// computation that produced idom.
func DominatorPath(csr *CSR, idom []NodeID, addr snapshot.Address) []snapshot.Address {
	id, ok := csr.id(addr)
	if !ok || idom[id] == -1 {
		return nil
	}

	var path []snapshot.Address
	for cur := id; cur != superRoot; cur = idom[cur] {
		path = append(path, csr.Addr(cur))
		if idom[cur] == -1 {
			break
		}
	}
	return path
}

// IsDominated reports whether dominator dominates node: every path from
// the synthetic root to node passes through dominator. A node dominates
// itself.
func IsDominated(csr *CSR, idom []NodeID, node, dominator snapshot.Address) bool {
	if node == dominator {
		return true
	}
	id, ok := csr.id(node)
	if !ok {
		return false
	}
	domID, ok := csr.id(dominator)
	if !ok {
		return false
	}
	for cur := idom[id]; cur != -1; cur = idom[cur] {
		if cur == domID {
			return true
		}
		if cur == superRoot {
			return false
		}
	}
	return false
}
