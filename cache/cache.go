// ABOUTME: On-disk persistence for a computed retained-heap table and its
// ABOUTME: per-thread totals, keyed by a fingerprint of the snapshot file

// Package cache persists the retained-heap engine's results to disk. They
// are expensive enough (a full Lengauer-Tarjan pass plus one reachability
// pass per thread over a graph that may hold 10^7 nodes) that repeated UI
// sessions over the same snapshot file should not pay for them twice. The
// cache file sits next to the snapshot, named
// "<snapshot-path>.<fingerprint>.retained_heap", and is versioned like the
// container format itself, using the same magic+version+tagged-value
// idiom snapshot/codec.go uses for the snapshot file and reusing the wire
// package's primitives directly rather than introducing a second
// encoding.
package cache

import (
	"bufio"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prateek/heaplens/graph"
	"github.com/prateek/heaplens/snapshot"
	"github.com/prateek/heaplens/wire"
)

// Magic identifies a heaplens retained-heap cache file.
var Magic = [4]byte{'P', 'H', 'R', 'C'}

// CurrentVersion is written by Save and is the only version Load accepts;
// any other version is treated the same as a corrupt file (non-fatal,
// recomputed).
const CurrentVersion uint32 = 1

// ErrCorrupt means the cache file's header, fingerprint, or body did not
// decode cleanly. Never fatal to the caller: cache read errors are always
// swallowed and the cache recomputed.
var ErrCorrupt = errors.New("cache: corrupt or unreadable cache file")

// Result is the payload a cache file round-trips: the per-object retained
// table and the per-thread retained totals computed alongside it.
type Result struct {
	Table        graph.RetainedTable
	ThreadTotals map[string]uint64
}

// FilePath returns the cache path for a snapshot file with the given
// fingerprint.
func FilePath(snapshotPath, fingerprint string) string {
	return snapshotPath + "." + fingerprint + ".retained_heap"
}

// Fingerprint hashes the raw bytes of the snapshot file at path with
// SHA-1. This is a hash of the file's bytes, never of the parsed content
// model, so two snapshots that decode identically but were written with
// different gzip parameters get different fingerprints (and two
// byte-identical files always share a cache entry).
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, bufio.NewReaderSize(f, 256*1024)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Outcome reports what happened on a cache lookup, for a caller (the CLI)
// to surface without treating any of these as an error: cache problems
// are always swallowed and logged, never raised.
type Outcome int

const (
	// OutcomeHit means a cache file matching the fingerprint was found and
	// decoded successfully; its contents were used as-is.
	OutcomeHit Outcome = iota
	// OutcomeMiss means no cache file exists at the expected path.
	OutcomeMiss
	// OutcomeStale means a cache file exists but its fingerprint doesn't
	// match (the snapshot file changed since it was written).
	OutcomeStale
	// OutcomeCorrupt means a cache file exists, its fingerprint matched or
	// couldn't be checked, but its header or body failed to decode.
	OutcomeCorrupt
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeMiss:
		return "miss"
	case OutcomeStale:
		return "stale"
	case OutcomeCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Load reads and validates the cache file for (snapshotPath, fingerprint).
// It never returns an error for a missing or invalid cache — that's
// reported via the Outcome; cache read errors are always non-fatal. A
// non-nil error means an I/O failure that isn't about the
// cache's correctness (e.g. a permissions problem on a path that does
// exist) and the caller should fall back to compute-and-save exactly as
// for the non-hit outcomes.
func Load(snapshotPath, fingerprint string) (Result, Outcome, error) {
	path := FilePath(snapshotPath, fingerprint)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// A cache file for the same snapshot path under a different
			// fingerprint means the snapshot file changed since it was cached.
			prefix := filepath.Base(snapshotPath) + "."
			entries, _ := os.ReadDir(filepath.Dir(snapshotPath))
			for _, e := range entries {
				name := e.Name()
				if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".retained_heap") &&
					len(name) == len(prefix)+len(fingerprint)+len(".retained_heap") {
					return Result{}, OutcomeStale, nil
				}
			}
			return Result{}, OutcomeMiss, nil
		}
		return Result{}, OutcomeMiss, err
	}
	defer f.Close()

	res, outcome, err := decode(f, fingerprint)
	if err != nil {
		return Result{}, outcome, nil
	}
	return res, outcome, nil
}

func decode(r io.Reader, wantFingerprint string) (Result, Outcome, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Result{}, OutcomeCorrupt, fmt.Errorf("%w: reading magic: %v", ErrCorrupt, err)
	}
	if magic != Magic {
		return Result{}, OutcomeCorrupt, fmt.Errorf("%w: bad magic %x", ErrCorrupt, magic)
	}

	var versionBuf [4]byte
	if _, err := io.ReadFull(r, versionBuf[:]); err != nil {
		return Result{}, OutcomeCorrupt, fmt.Errorf("%w: reading version: %v", ErrCorrupt, err)
	}
	if binary.BigEndian.Uint32(versionBuf[:]) != CurrentVersion {
		return Result{}, OutcomeCorrupt, fmt.Errorf("%w: unsupported cache version", ErrCorrupt)
	}

	wr := wire.NewReader(r)
	gotFingerprint, err := wr.ReadString()
	if err != nil {
		return Result{}, OutcomeCorrupt, fmt.Errorf("%w: reading fingerprint: %v", ErrCorrupt, err)
	}
	if gotFingerprint != wantFingerprint {
		return Result{}, OutcomeStale, fmt.Errorf("%w: fingerprint mismatch", ErrCorrupt)
	}

	n, err := wr.ReadAddressMapHeader()
	if err != nil {
		return Result{}, OutcomeCorrupt, fmt.Errorf("%w: reading object count: %v", ErrCorrupt, err)
	}
	table := make(graph.RetainedTable, n)
	for i := 0; i < n; i++ {
		addr, err := wr.ReadMapKeyAddress()
		if err != nil {
			return Result{}, OutcomeCorrupt, fmt.Errorf("%w: reading address %d: %v", ErrCorrupt, i, err)
		}
		retained, err := wr.ReadUint()
		if err != nil {
			return Result{}, OutcomeCorrupt, fmt.Errorf("%w: reading retained size %d: %v", ErrCorrupt, i, err)
		}
		table[snapshot.Address(addr)] = retained
	}

	tn, err := wr.ReadStringMapHeader()
	if err != nil {
		return Result{}, OutcomeCorrupt, fmt.Errorf("%w: reading thread count: %v", ErrCorrupt, err)
	}
	totals := make(map[string]uint64, tn)
	for i := 0; i < tn; i++ {
		name, err := wr.ReadMapKeyString()
		if err != nil {
			return Result{}, OutcomeCorrupt, fmt.Errorf("%w: reading thread name %d: %v", ErrCorrupt, i, err)
		}
		retained, err := wr.ReadUint()
		if err != nil {
			return Result{}, OutcomeCorrupt, fmt.Errorf("%w: reading thread total %d: %v", ErrCorrupt, i, err)
		}
		totals[name] = retained
	}

	return Result{Table: table, ThreadTotals: totals}, OutcomeHit, nil
}

// Save writes res to the cache file for (snapshotPath, fingerprint),
// atomically: the payload is written to "<path>.tmp" and renamed into
// place, so a reader never observes a torn file and a concurrent writer's
// last rename simply wins.
func Save(snapshotPath, fingerprint string, res Result) error {
	path := FilePath(snapshotPath, fingerprint)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := encode(f, fingerprint, res); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(w io.Writer, fingerprint string, res Result) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return err
	}
	var versionBuf [4]byte
	binary.BigEndian.PutUint32(versionBuf[:], CurrentVersion)
	if _, err := w.Write(versionBuf[:]); err != nil {
		return err
	}

	wr := wire.NewWriter(w)
	if err := wr.WriteString(fingerprint); err != nil {
		return err
	}

	addrs := make([]snapshot.Address, 0, len(res.Table))
	for a := range res.Table {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	if err := wr.WriteAddressMapHeader(len(addrs)); err != nil {
		return err
	}
	for _, a := range addrs {
		if err := wr.WriteMapKeyAddress(wire.Addr(a)); err != nil {
			return err
		}
		if err := wr.WriteUint(res.Table[a]); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(res.ThreadTotals))
	for name := range res.ThreadTotals {
		names = append(names, name)
	}
	sort.Strings(names)

	if err := wr.WriteStringMapHeader(len(names)); err != nil {
		return err
	}
	for _, name := range names {
		if err := wr.WriteMapKeyString(name); err != nil {
			return err
		}
		if err := wr.WriteUint(res.ThreadTotals[name]); err != nil {
			return err
		}
	}

	return wr.Flush()
}
