package graph

import (
	"context"
	"testing"

	"github.com/prateek/heaplens/snapshot"
)

func idOf(t *testing.T, csr *CSR, addr snapshot.Address) NodeID {
	t.Helper()
	id, ok := csr.id(addr)
	if !ok {
		t.Fatalf("address %d has no graph node", addr)
	}
	return id
}

func TestDominators_Chain(t *testing.T) {
	snap := snapshot.New(nil, nil, []*snapshot.Object{
		obj(10, 1, 20),
		obj(20, 1, 30),
		obj(30, 1),
	}, nil)
	csr, err := BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	idom, err := Dominators(context.Background(), csr, []snapshot.Address{10})
	if err != nil {
		t.Fatalf("Dominators() = %v", err)
	}

	if got := idom[idOf(t, csr, 10)]; got != superRoot {
		t.Errorf("idom[10] = %d, want superRoot", got)
	}
	if got := idom[idOf(t, csr, 20)]; got != idOf(t, csr, 10) {
		t.Errorf("idom[20] = %d, want id(10)", got)
	}
	if got := idom[idOf(t, csr, 30)]; got != idOf(t, csr, 20) {
		t.Errorf("idom[30] = %d, want id(20)", got)
	}
}

func TestDominators_DiamondConvergesAtRoot(t *testing.T) {
	// 10 -> 20 -> 40
	// 10 -> 30 -> 40
	// 40 has two disjoint paths from 10, so 10 (not 20 or 30) dominates it.
	snap := snapshot.New(nil, nil, []*snapshot.Object{
		obj(10, 1, 20, 30),
		obj(20, 1, 40),
		obj(30, 1, 40),
		obj(40, 1),
	}, nil)
	csr, err := BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	idom, err := Dominators(context.Background(), csr, []snapshot.Address{10})
	if err != nil {
		t.Fatalf("Dominators() = %v", err)
	}

	if got := idom[idOf(t, csr, 40)]; got != idOf(t, csr, 10) {
		t.Errorf("idom[40] = %d, want id(10)", got)
	}
}

func TestDominators_UnreachableExcluded(t *testing.T) {
	snap := snapshot.New(nil, nil, []*snapshot.Object{
		obj(10, 1),
		obj(99, 1), // never referenced, not a root
	}, nil)
	csr, err := BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	idom, err := Dominators(context.Background(), csr, []snapshot.Address{10})
	if err != nil {
		t.Fatalf("Dominators() = %v", err)
	}

	if got := idom[idOf(t, csr, 99)]; got != -1 {
		t.Errorf("idom[99] = %d, want -1 (unreached)", got)
	}
}

func TestDominators_TwoRootsShareDescendant(t *testing.T) {
	// Both 10 and 11 are roots and both point at 50: 50 is dominated
	// directly by the synthetic root, not by either 10 or 11.
	snap := snapshot.New(nil, nil, []*snapshot.Object{
		obj(10, 1, 50),
		obj(11, 1, 50),
		obj(50, 1),
	}, nil)
	csr, err := BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	idom, err := Dominators(context.Background(), csr, []snapshot.Address{10, 11})
	if err != nil {
		t.Fatalf("Dominators() = %v", err)
	}

	if got := idom[idOf(t, csr, 50)]; got != superRoot {
		t.Errorf("idom[50] = %d, want superRoot", got)
	}
}
