// ABOUTME: Integration tests for the complete HeapLens pipeline
// ABOUTME: JSON fixture -> snapshot -> CSR -> retained heap -> views -> cache round-trip

package heaplens_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prateek/heaplens/cache"
	"github.com/prateek/heaplens/graph"
	"github.com/prateek/heaplens/heapdump"
	"github.com/prateek/heaplens/snapshot"
	"github.com/prateek/heaplens/view"
)

func writeJSON(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestEndToEndRetainedHeap walks the whole pipeline on a diamond-shaped
// graph: a@1 refs [2,3], b@2 and c@3 both ref d@4. d is co-dominated by
// b and c, so it is only attributed to a's retained size.
func TestEndToEndRetainedHeap(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "diamond.json", `{
		"objects": [
			{"id": 1, "type": "a", "size": 10, "ptrs": [2, 3]},
			{"id": 2, "type": "b", "size": 20, "ptrs": [4]},
			{"id": 3, "type": "c", "size": 30, "ptrs": [4]},
			{"id": 4, "type": "d", "size": 40, "ptrs": []}
		],
		"roots": [1]
	}`)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	snap, err := heapdump.Open(context.Background(), f)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if snap.NumObjects() != 4 {
		t.Fatalf("NumObjects() = %d, want 4", snap.NumObjects())
	}

	csr, err := graph.BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	inbound := graph.BuildInboundIndex(csr)
	retained, err := graph.RetainedHeap(context.Background(), snap, csr)
	if err != nil {
		t.Fatalf("RetainedHeap() = %v", err)
	}

	want := map[snapshot.Address]uint64{1: 100, 2: 20, 3: 30, 4: 40}
	for addr, size := range want {
		if got := retained[addr]; got != size {
			t.Errorf("retained(%d) = %d, want %d", addr, got, size)
		}
	}

	if got := inbound.Inbound(4); len(got) != 2 {
		t.Errorf("inbound(4) = %v, want 2 entries", got)
	}

	views := view.PageByRetained(snap, inbound, retained, 0, 10)
	if len(views) != 4 || views[0].Address != 1 {
		t.Fatalf("PageByRetained() top entry = %+v, want address 1 first", views)
	}
}

func threadWithLocals(name string, locals map[string]snapshot.Address) *snapshot.Thread {
	return &snapshot.Thread{
		Name:   name,
		Alive:  true,
		Frames: []snapshot.Frame{{Function: "main", Locals: locals}},
	}
}

// TestPerThreadRetainedIntegration exercises the per-thread tie-break end
// to end: two threads each own one private object outright, and both
// reference a shared object that neither is credited with.
func TestPerThreadRetainedIntegration(t *testing.T) {
	snap := snapshot.New(nil, nil, []*snapshot.Object{
		{Addr: 1, Size: 10, Referents: []snapshot.Address{3}},
		{Addr: 2, Size: 20, Referents: []snapshot.Address{3}},
		{Addr: 3, Size: 30},
	}, []*snapshot.Thread{
		threadWithLocals("worker-a", map[string]snapshot.Address{"a": 1}),
		threadWithLocals("worker-b", map[string]snapshot.Address{"b": 2}),
	})

	csr, err := graph.BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	totals, err := graph.PerThreadRetained(context.Background(), snap, csr)
	if err != nil {
		t.Fatalf("PerThreadRetained() = %v", err)
	}

	if totals["worker-a"] != 10 {
		t.Errorf("totals[worker-a] = %d, want 10", totals["worker-a"])
	}
	if totals["worker-b"] != 20 {
		t.Errorf("totals[worker-b] = %d, want 20", totals["worker-b"])
	}

	retained, err := graph.RetainedHeap(context.Background(), snap, csr)
	if err != nil {
		t.Fatalf("RetainedHeap() = %v", err)
	}
	views := view.ThreadViews(snap, totals, retained)
	if len(views) != 2 {
		t.Fatalf("ThreadViews() = %d entries, want 2", len(views))
	}
	if len(views[0].Locals) != 1 || views[0].Locals[0].Retained != 10 {
		t.Errorf("worker-a locals = %+v, want a@1 retaining 10 (object 3 is co-dominated)", views[0].Locals)
	}
}

// TestRetainerPathsIntegration confirms a deep chain still resolves back
// to its root through the inbound index built from the CSR.
func TestRetainerPathsIntegration(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "chain.json", `{
		"objects": [
			{"id": 1, "type": "root", "size": 10, "ptrs": [2]},
			{"id": 2, "type": "mid", "size": 10, "ptrs": [3]},
			{"id": 3, "type": "leaf", "size": 10, "ptrs": []}
		],
		"roots": [1]
	}`)
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	snap, err := heapdump.Open(context.Background(), f)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	csr, err := graph.BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	inbound := graph.BuildInboundIndex(csr)
	retained, err := graph.RetainedHeap(context.Background(), snap, csr)
	if err != nil {
		t.Fatalf("RetainedHeap() = %v", err)
	}

	paths := graph.RetainerPaths(inbound, retained, graph.RootAddrs(snap.Threads()), 3, 5)
	if len(paths) == 0 {
		t.Fatal("RetainerPaths() found no chain from leaf to root")
	}
	got := paths[0].Addrs
	if len(got) != 3 || got[0] != 3 || got[len(got)-1] != 1 {
		t.Errorf("RetainerPaths() = %v, want chain from 3 to 1", got)
	}
}

// TestCacheRoundTripIntegration computes retained heap once, writes the
// cache, and confirms a fresh Load reproduces the same table without
// recomputing.
func TestCacheRoundTripIntegration(t *testing.T) {
	dir := t.TempDir()
	jsonPath := writeJSON(t, dir, "cached.json", `{
		"objects": [
			{"id": 1, "type": "a", "size": 5, "ptrs": [2]},
			{"id": 2, "type": "b", "size": 7, "ptrs": []}
		],
		"roots": [1]
	}`)

	f, err := os.Open(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := heapdump.Open(context.Background(), f)
	f.Close()
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}

	csr, err := graph.BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	table, err := graph.RetainedHeap(context.Background(), snap, csr)
	if err != nil {
		t.Fatalf("RetainedHeap() = %v", err)
	}
	totals, err := graph.PerThreadRetained(context.Background(), snap, csr)
	if err != nil {
		t.Fatalf("PerThreadRetained() = %v", err)
	}

	// The cache is keyed by a fingerprint of the snapshot file's raw
	// bytes, not the JSON fixture's parsed content, so fingerprint the
	// same file the snapshot came from.
	fp, err := cache.Fingerprint(jsonPath)
	if err != nil {
		t.Fatalf("Fingerprint() = %v", err)
	}
	if err := cache.Save(jsonPath, fp, cache.Result{Table: table, ThreadTotals: totals}); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	loaded, outcome, err := cache.Load(jsonPath, fp)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if outcome != cache.OutcomeHit {
		t.Fatalf("outcome = %v, want hit", outcome)
	}
	if loaded.Table[1] != table[1] || loaded.Table[2] != table[2] {
		t.Errorf("loaded table = %v, want %v", loaded.Table, table)
	}
}

// TestEmptySnapshotIntegration covers the boundary case: a snapshot with
// no objects and no threads loads cleanly and every downstream stage
// reports empty results rather than erroring.
func TestEmptySnapshotIntegration(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "empty.json", `{"objects": [], "roots": []}`)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	snap, err := heapdump.Open(context.Background(), f)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if snap.NumObjects() != 0 {
		t.Errorf("NumObjects() = %d, want 0", snap.NumObjects())
	}

	csr, err := graph.BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	retained, err := graph.RetainedHeap(context.Background(), snap, csr)
	if err != nil {
		t.Fatalf("RetainedHeap() = %v", err)
	}
	if len(retained) != 0 {
		t.Errorf("retained table = %v, want empty", retained)
	}
	totals, err := graph.PerThreadRetained(context.Background(), snap, csr)
	if err != nil {
		t.Fatalf("PerThreadRetained() = %v", err)
	}
	if len(totals) != 0 {
		t.Errorf("per-thread totals = %v, want empty", totals)
	}
}

// TestDanglingReferenceIntegration covers an edge whose target was never
// dumped: the snapshot still loads, the dangling reference is recorded as
// a diagnostic rather than an error, and the referencing object's own
// retained size is unaffected.
func TestDanglingReferenceIntegration(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "dangling.json", `{
		"objects": [
			{"id": 1, "type": "a", "size": 10, "ptrs": [999]}
		],
		"roots": [1]
	}`)
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	snap, err := heapdump.Open(context.Background(), f)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if snap.Diagnostics().DanglingReferences != 1 {
		t.Errorf("DanglingReferences = %d, want 1", snap.Diagnostics().DanglingReferences)
	}

	csr, err := graph.BuildCSR(snap)
	if err != nil {
		t.Fatalf("BuildCSR() = %v", err)
	}
	retained, err := graph.RetainedHeap(context.Background(), snap, csr)
	if err != nil {
		t.Fatalf("RetainedHeap() = %v", err)
	}
	if got := retained[1]; got != 10 {
		t.Errorf("retained(1) = %d, want 10", got)
	}
}

func TestNoParserMatchesUnrecognizedInput(t *testing.T) {
	_, err := heapdump.Open(context.Background(), strings.NewReader("not a heap dump"))
	if err == nil {
		t.Fatal("Open() on garbage input: want error, got nil")
	}
}
