package graph

import (
	"context"
	"testing"

	"github.com/prateek/heaplens/snapshot"
)

func TestRetainerPaths_FindsChainAndSurvivesCycles(t *testing.T) {
	// root(10) -> 20 -> 30, and 30 -> 20 forms a cycle back up.
	snap := snapshot.New(nil, nil, []*snapshot.Object{
		obj(10, 1, 20),
		obj(20, 1, 30),
		obj(30, 1, 20),
	}, nil)
	csr, err := BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	idx := BuildInboundIndex(csr)

	paths := RetainerPaths(idx, nil, []snapshot.Address{10}, 30, 5)
	if len(paths) != 1 {
		t.Fatalf("RetainerPaths() returned %d chains, want 1", len(paths))
	}
	want := []snapshot.Address{30, 20, 10}
	got := paths[0].Addrs
	if len(got) != len(want) {
		t.Fatalf("chain = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chain[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRetainerPaths_HeaviestRetainerFirst(t *testing.T) {
	// Both 1 and 2 are roots holding 3; 2 retains far more, so with
	// maxPaths=1 the chain through 2 is the one reported.
	snap := snapshot.New(nil, nil, []*snapshot.Object{
		obj(1, 10, 3),
		obj(2, 10, 3, 4),
		obj(3, 5),
		obj(4, 500),
	}, []*snapshot.Thread{
		threadWithLocals("main", map[string]snapshot.Address{"a": 1, "b": 2}),
	})
	csr, err := BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	idx := BuildInboundIndex(csr)
	retained, err := RetainedHeap(context.Background(), snap, csr)
	if err != nil {
		t.Fatalf("RetainedHeap() = %v", err)
	}

	paths := RetainerPaths(idx, retained, []snapshot.Address{1, 2}, 3, 1)
	if len(paths) != 1 {
		t.Fatalf("RetainerPaths() returned %d chains, want 1", len(paths))
	}
	if got := paths[0].Addrs; len(got) != 2 || got[0] != 3 || got[1] != 2 {
		t.Errorf("chain = %v, want [3 2] (through the heavier retainer)", got)
	}
}

func TestRetainerPaths_DistinctRoots(t *testing.T) {
	// Two roots each hold 3 through their own intermediary; asking for
	// more chains than exist still yields one per root, shortest first
	// within each.
	snap := snapshot.New(nil, nil, []*snapshot.Object{
		obj(1, 1, 10),
		obj(2, 1, 20),
		obj(10, 1, 3),
		obj(20, 1, 3),
		obj(3, 1),
	}, nil)
	csr, err := BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	idx := BuildInboundIndex(csr)

	paths := RetainerPaths(idx, nil, []snapshot.Address{1, 2}, 3, 10)
	if len(paths) != 2 {
		t.Fatalf("RetainerPaths() returned %d chains, want 2", len(paths))
	}
	seen := map[snapshot.Address]bool{}
	for _, p := range paths {
		if len(p.Addrs) != 3 || p.Addrs[0] != 3 {
			t.Errorf("chain = %v, want length 3 starting at 3", p.Addrs)
		}
		seen[p.Addrs[len(p.Addrs)-1]] = true
	}
	if !seen[1] || !seen[2] {
		t.Errorf("chains end at %v, want both roots 1 and 2", seen)
	}
}

func TestRetainerPaths_FromIsRoot(t *testing.T) {
	snap := snapshot.New(nil, nil, []*snapshot.Object{obj(10, 1)}, nil)
	csr, err := BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	idx := BuildInboundIndex(csr)

	paths := RetainerPaths(idx, nil, []snapshot.Address{10}, 10, 5)
	if len(paths) != 1 || len(paths[0].Addrs) != 1 || paths[0].Addrs[0] != 10 {
		t.Errorf("RetainerPaths(from=root) = %v, want [{[10]}]", paths)
	}
}

func TestRetainerPaths_Unreachable(t *testing.T) {
	snap := snapshot.New(nil, nil, []*snapshot.Object{
		obj(10, 1),
		obj(99, 1),
	}, nil)
	csr, err := BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	idx := BuildInboundIndex(csr)

	if paths := RetainerPaths(idx, nil, []snapshot.Address{10}, 99, 5); paths != nil {
		t.Errorf("RetainerPaths(unreachable) = %v, want nil", paths)
	}
}
