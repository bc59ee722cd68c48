package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/wmheap/heap"
)

var statsAppend []string

func init() {
	cmd := newStatsCmd()
	cmd.Flags().
		StringSliceVar(&statsAppend, "append", nil, "Deferred regions to append after init (uses --probe-size)")
	rootCmd.AddCommand(cmd)
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show heap statistics right after init",
		Long: `The stats command initialises the heap for the selected board and prints
its free space per region, optionally after appending deferred regions.

Example:
  heapctl stats
  heapctl stats --append PSRAM --probe-size 2MB
  heapctl stats --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats()
		},
	}
	return cmd
}

func runStats() error {
	a, _, err := newAllocator(os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, name := range statsAppend {
		printVerbose("Appending region: %s\n", name)
		if err := a.Append(name); err != nil {
			return err
		}
	}

	st := a.Stats()
	if jsonOut {
		return printJSON(st)
	}
	if !quiet {
		a.PrintStats()
	}
	printStatsTable(st)
	return nil
}

func printStatsTable(st heap.Stats) {
	printInfo("\n%-8s %-10s %12s %12s %12s  %s\n", "REGION", "START", "SIZE", "FREE", "MIN FREE", "CAPS")
	for _, r := range st.Regions {
		printInfo("%-8s %-10v %12s %12s %12s  %v\n",
			r.Name, heap.Ptr(r.Start),
			numbers.Sprintf("%d", r.Size),
			numbers.Sprintf("%d", r.FreeBytes),
			numbers.Sprintf("%d", r.MinimumEverFreeBytes),
			r.Caps)
	}
	printInfo("\n%s bytes free, %s minimum ever, %s allocations, %s frees\n",
		numbers.Sprintf("%d", st.FreeBytes),
		numbers.Sprintf("%d", st.MinimumEverFreeBytes),
		numbers.Sprintf("%d", st.Allocations),
		numbers.Sprintf("%d", st.Frees))
	if tracing {
		printInfo("%s bytes in %d live blocks\n", numbers.Sprintf("%d", st.UsedBytes), st.UsedBlocks)
	}
}
