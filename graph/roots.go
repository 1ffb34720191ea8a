// ABOUTME: Derives GC root addresses from thread-local state
// ABOUTME: The parser never sees roots directly; the engine derives them from thread locals

package graph

import "github.com/prateek/heaplens/snapshot"

// RootAddrs is the union, deduplicated, of every local variable target
// across every frame of every thread — the whole-heap root set. The
// engine derives it itself from snapshot.Thread.Frames[*].Locals rather
// than taking a flat root list from a caller.
func RootAddrs(threads []*snapshot.Thread) []snapshot.Address {
	seen := make(map[snapshot.Address]struct{})
	var out []snapshot.Address
	for _, th := range threads {
		for _, f := range th.Frames {
			for _, addr := range f.Locals {
				if _, ok := seen[addr]; ok {
					continue
				}
				seen[addr] = struct{}{}
				out = append(out, addr)
			}
		}
	}
	return out
}

// ThreadRootAddrs is RootAddrs restricted to one thread, used by
// PerThreadRetained as the starting set of that thread's reachability
// pass.
func ThreadRootAddrs(th *snapshot.Thread) []snapshot.Address {
	seen := make(map[snapshot.Address]struct{})
	var out []snapshot.Address
	for _, f := range th.Frames {
		for _, addr := range f.Locals {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	return out
}
