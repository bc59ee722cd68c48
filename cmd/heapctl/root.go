package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/inhies/go-bytesize"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/wmheap/heap"
	"github.com/joshuapare/wmheap/layout"
)

var (
	// Global flags
	verbose    bool
	quiet      bool
	jsonOut    bool
	layoutFile string
	board      string
	tracing    bool
	poison     string
	assertions bool
	probeSize  bytesize.ByteSize
	backing    string
)

var rootCmd = &cobra.Command{
	Use:   "heapctl",
	Short: "Inspect board memory layouts and exercise the region heap",
	Long: `heapctl builds the capability-aware region heap for a board layout and
lets you inspect it, print its statistics or replay allocation scripts against
it with tracing and poisoning enabled.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		StringVarP(&layoutFile, "layout", "l", "", "YAML layout file (overrides --board)")
	rootCmd.PersistentFlags().StringVar(&board, "board", "w800", "Built-in board layout")
	rootCmd.PersistentFlags().BoolVar(&tracing, "tracing", false, "Record allocation sites")
	rootCmd.PersistentFlags().
		StringVar(&poison, "poison", "none", "Poisoning mode: none, light or comprehensive")
	rootCmd.PersistentFlags().
		BoolVar(&assertions, "assertions", false, "Panic on heap corruption")
	rootCmd.PersistentFlags().
		Var(&probeSize, "probe-size", "Size reported for deferred regions, e.g. 2MB (0 fails the probe)")
	rootCmd.PersistentFlags().
		StringVar(&backing, "backing", "mmap", "Region memory: mmap or go")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v\n", err)
		os.Exit(1)
	}
}

// loadLayout returns the layout selected by --layout or --board.
func loadLayout() (*layout.Layout, error) {
	if layoutFile != "" {
		printVerbose("Loading layout: %s\n", layoutFile)
		return layout.Load(layoutFile)
	}
	l := layout.Builtin(board)
	if l == nil {
		return nil, fmt.Errorf("unknown board %q", board)
	}
	return l, nil
}

func parsePoison(s string) (heap.Poisoning, error) {
	for _, p := range []heap.Poisoning{heap.PoisonNone, heap.PoisonLight, heap.PoisonComprehensive} {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown poisoning mode %q", s)
}

func parseBacking(s string) (heap.Mapper, error) {
	switch s {
	case "mmap":
		return heap.MappedMemory, nil
	case "go":
		return heap.GoMemory, nil
	}
	return nil, fmt.Errorf("unknown backing %q", s)
}

// newAllocator builds an allocator for the selected layout. Dumps go to out.
func newAllocator(out io.Writer) (*heap.Allocator, *layout.Layout, error) {
	l, err := loadLayout()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := l.Config()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Poisoning, err = parsePoison(poison); err != nil {
		return nil, nil, err
	}
	if cfg.Backing, err = parseBacking(backing); err != nil {
		return nil, nil, err
	}
	cfg.Tracing = tracing
	cfg.Assertions = assertions
	cfg.Output = out
	cfg.Logger = newLogger()
	cfg.Prober = heap.ProberFunc(probe)

	a, err := heap.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, l, nil
}

// probe stands in for the hardware probe of deferred regions.
func probe(region string) (uint32, error) {
	if probeSize == 0 {
		return 0, fmt.Errorf("no device answered for %s (set --probe-size)", region)
	}
	if uint64(probeSize) > 1<<32-1 {
		return 0, fmt.Errorf("probe size %v exceeds 32 bits", probeSize)
	}
	return uint32(probeSize), nil
}

func newLogger() *slog.Logger {
	if !verbose || quiet {
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Helper functions for output

// numbers formats byte counts with thousands separators
var numbers = message.NewPrinter(language.English)

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
