// ABOUTME: retained-heap is the standalone CLI for the retained-heap analyzer
// ABOUTME: Loads a snapshot, computes or loads its cached retained heap, prints the top N objects

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/prateek/heaplens/cache"
	"github.com/prateek/heaplens/graph"
	"github.com/prateek/heaplens/heapdump"
	"github.com/prateek/heaplens/snapshot"
	"github.com/prateek/heaplens/view"
)

const (
	exitOK        = 0
	exitMalformed = 2
	exitIOError   = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		file string
		top  int
	)

	cmd := &cobra.Command{
		Use:   "retained-heap",
		Short: "Compute and print the objects with the largest retained heap in a snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return analyze(cmd.OutOrStdout(), file, top)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the snapshot file (required)")
	cmd.Flags().IntVar(&top, "top", 20, "number of objects to print, ranked by retained heap size")
	cmd.MarkFlagRequired("file")
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	return exitOK
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, snapshot.ErrMalformedSnapshot), errors.Is(err, snapshot.ErrUnsupportedVersion),
		errors.Is(err, heapdump.ErrNoParser):
		return exitMalformed
	default:
		return exitIOError
	}
}

func analyze(out io.Writer, file string, top int) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx := context.Background()
	snap, err := heapdump.Open(ctx, f)
	if err != nil {
		return err
	}

	csr, err := graph.BuildCSR(snap)
	if err != nil {
		return err
	}
	inbound := graph.BuildInboundIndex(csr)

	retained, _, err := loadOrCompute(ctx, file, snap, csr)
	if err != nil {
		return err
	}

	views := view.PageByRetained(snap, inbound, retained, 0, top)
	printTable(out, views)
	return nil
}

// loadOrCompute adopts a matching on-disk cache when one decodes cleanly;
// otherwise it computes the retained-heap table fresh and writes a cache
// for the next run. Cache problems of any kind are non-fatal here — a
// miss, a stale fingerprint, or a corrupt file all fall through to the
// same compute-and-save path.
func loadOrCompute(ctx context.Context, file string, snap *snapshot.Snapshot, csr *graph.CSR) (graph.RetainedTable, map[string]uint64, error) {
	fp, err := cache.Fingerprint(file)
	if err != nil {
		return nil, nil, err
	}

	res, outcome, err := cache.Load(file, fp)
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "retained-heap: warning: could not read cache: %v\n", err)
	case outcome == cache.OutcomeHit:
		return res.Table, res.ThreadTotals, nil
	case outcome != cache.OutcomeMiss:
		fmt.Fprintf(os.Stderr, "retained-heap: cache %v, recomputing\n", outcome)
	}

	table, err := graph.RetainedHeap(ctx, snap, csr)
	if err != nil {
		return nil, nil, err
	}
	totals, err := graph.PerThreadRetained(ctx, snap, csr)
	if err != nil {
		return nil, nil, err
	}

	if err := cache.Save(file, fp, cache.Result{Table: table, ThreadTotals: totals}); err != nil {
		fmt.Fprintf(os.Stderr, "retained-heap: warning: could not write cache: %v\n", err)
	}
	return table, totals, nil
}

const maxStrColumn = 60

func printTable(out io.Writer, views []view.ObjectView) {
	tw := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Address\tObject type\tRetained heap size\tString representation")
	for _, v := range views {
		str := ""
		if v.HasStr {
			str = truncate(v.Str, maxStrColumn)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", v.Address, v.TypeName, v.RetainedSize, str)
	}
	tw.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
