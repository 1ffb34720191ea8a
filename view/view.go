// ABOUTME: Pure read-only projections over a loaded snapshot plus its
// ABOUTME: computed inbound index and retained-size table, for the CLI/UI

// Package view answers the questions a UI actually asks of a loaded heap:
// "show me this object", "what are the biggest N objects", "what does this
// type look like", "what does this thread retain". None of it mutates its
// inputs; it is read-only projection over (*snapshot.Snapshot,
// *graph.InboundIndex, graph.RetainedTable).
package view

import (
	"sort"
	"strings"

	"github.com/prateek/heaplens/graph"
	"github.com/prateek/heaplens/snapshot"
)

// ObjectView is a denormalized, display-ready summary of one object: its
// identity plus the two sizes a retained-heap tool exists to report.
type ObjectView struct {
	Address      snapshot.Address
	TypeName     string
	ShallowSize  uint64
	RetainedSize uint64
	Str          string
	HasStr       bool
	NumReferents int
	NumInbound   int
}

// Object projects a single address, or reports ok=false if the address
// isn't a key in the object table (EntryUnknown/EntryAbsent never have a
// view: there's nothing to show beyond the address itself).
func Object(snap *snapshot.Snapshot, inbound *graph.InboundIndex, retained graph.RetainedTable, addr snapshot.Address) (ObjectView, bool) {
	entry := snap.Get(addr)
	if entry.Kind != snapshot.EntryObject {
		return ObjectView{}, false
	}
	return toView(snap, inbound, retained, entry.Obj), true
}

func toView(snap *snapshot.Snapshot, inbound *graph.InboundIndex, retained graph.RetainedTable, obj *snapshot.Object) ObjectView {
	return ObjectView{
		Address:      obj.Addr,
		TypeName:     snap.TypeName(obj.TypeAddr),
		ShallowSize:  obj.Size,
		RetainedSize: retained[obj.Addr],
		Str:          obj.Str,
		HasStr:       obj.HasStr,
		NumReferents: len(obj.Referents) + len(obj.Attributes) + len(obj.Elements),
		NumInbound:   len(inbound.Inbound(obj.Addr)),
	}
}

// sortByRetainedDesc sorts views by descending retained size, breaking ties
// by ascending address for deterministic output.
func sortByRetainedDesc(views []ObjectView) {
	sort.Slice(views, func(i, j int) bool {
		if views[i].RetainedSize != views[j].RetainedSize {
			return views[i].RetainedSize > views[j].RetainedSize
		}
		return views[i].Address < views[j].Address
	})
}

// PageByRetained returns up to limit objects, ranked by descending retained
// size (ties broken by ascending address), starting after the first offset
// entries in that ranking. offset/limit follow a "--top N" idiom rather
// than a cursor: callers that want the whole ranking just pass a limit
// large enough to cover NumObjects().
func PageByRetained(snap *snapshot.Snapshot, inbound *graph.InboundIndex, retained graph.RetainedTable, offset, limit int) []ObjectView {
	all := make([]ObjectView, 0, snap.NumObjects())
	for obj := range snap.Objects() {
		all = append(all, toView(snap, inbound, retained, obj))
	}
	sortByRetainedDesc(all)
	return page(all, offset, limit)
}

// ObjectsOfType returns up to limit objects of the given type, ranked the
// same way as PageByRetained. It backs drill-down from a TypeView into its
// instances; PageByType itself pages over types, not objects.
func ObjectsOfType(snap *snapshot.Snapshot, inbound *graph.InboundIndex, retained graph.RetainedTable, typeAddr snapshot.Address, offset, limit int) []ObjectView {
	var matched []ObjectView
	for obj := range snap.Objects() {
		if obj.TypeAddr != typeAddr {
			continue
		}
		matched = append(matched, toView(snap, inbound, retained, obj))
	}
	sortByRetainedDesc(matched)
	return page(matched, offset, limit)
}

// TypeView is a denormalized, display-ready summary of one type: its
// identity plus the aggregate retained size of every instance in the
// object table.
type TypeView struct {
	TypeAddr      snapshot.Address
	TypeName      string
	NumInstances  int
	TotalRetained uint64
}

// PageByType returns up to limit types, ranked by descending sum of
// retained size over their instances (ties broken by ascending type
// address), starting after the first offset entries in that ranking. When
// typeFilter is non-empty, only types whose name contains it (a
// case-sensitive substring match) are considered.
func PageByType(snap *snapshot.Snapshot, retained graph.RetainedTable, typeFilter string, offset, limit int) []TypeView {
	totals := make(map[snapshot.Address]*TypeView)
	for t := range snap.Types() {
		if typeFilter != "" && !strings.Contains(t.Name, typeFilter) {
			continue
		}
		totals[t.Addr] = &TypeView{TypeAddr: t.Addr, TypeName: t.Name}
	}
	for obj := range snap.Objects() {
		tv, ok := totals[obj.TypeAddr]
		if !ok {
			continue
		}
		tv.NumInstances++
		tv.TotalRetained += retained[obj.Addr]
	}

	all := make([]TypeView, 0, len(totals))
	for _, tv := range totals {
		all = append(all, *tv)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].TotalRetained != all[j].TotalRetained {
			return all[i].TotalRetained > all[j].TotalRetained
		}
		return all[i].TypeAddr < all[j].TypeAddr
	})

	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) || limit < 0 {
		end = len(all)
	}
	out := make([]TypeView, end-offset)
	copy(out, all[offset:end])
	return out
}

func page(views []ObjectView, offset, limit int) []ObjectView {
	if offset >= len(views) {
		return nil
	}
	end := offset + limit
	if end > len(views) || limit < 0 {
		end = len(views)
	}
	out := make([]ObjectView, end-offset)
	copy(out, views[offset:end])
	return out
}

// LocalView is one frame local paired with the retained size of its
// target object: 0 for unknown or unreachable targets.
type LocalView struct {
	Frame    int // index into the thread's Frames, outermost caller first
	Name     string
	Address  snapshot.Address
	Retained uint64
}

// ThreadView is a display-ready summary of one thread: its identity, the
// retained size attributed to it alone (an object reachable from more
// than one thread's locals is credited to neither, so it doesn't appear
// in any ThreadView.RetainedSize), and every frame local with the
// retained size of its target.
type ThreadView struct {
	Name         string
	Alive        bool
	Daemon       bool
	NumFrames    int
	RetainedSize uint64
	Locals       []LocalView
}

// ThreadViews projects every thread in the snapshot, in the snapshot's
// producer order, pairing each with its entry (if any) in perThread — the
// map graph.PerThreadRetained returns — and each of its locals with that
// local's entry in the whole-heap retained table. Locals within a frame
// are sorted by name for deterministic output.
func ThreadViews(snap *snapshot.Snapshot, perThread map[string]uint64, retained graph.RetainedTable) []ThreadView {
	threads := snap.Threads()
	out := make([]ThreadView, len(threads))
	for i, th := range threads {
		var locals []LocalView
		for fi, f := range th.Frames {
			names := make([]string, 0, len(f.Locals))
			for name := range f.Locals {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				addr := f.Locals[name]
				locals = append(locals, LocalView{
					Frame:    fi,
					Name:     name,
					Address:  addr,
					Retained: retained[addr],
				})
			}
		}
		out[i] = ThreadView{
			Name:         th.Name,
			Alive:        th.Alive,
			Daemon:       th.Daemon,
			NumFrames:    len(th.Frames),
			RetainedSize: perThread[th.Name],
			Locals:       locals,
		}
	}
	return out
}
