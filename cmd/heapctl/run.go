package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var runKeepGoing bool

func init() {
	cmd := newRunCmd()
	cmd.Flags().BoolVarP(&runKeepGoing, "keep-going", "k", false, "Continue after a failing line")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Replay an allocation script",
		Long: `The run command initialises the heap and executes a script, one command
per line ("-" reads standard input). Lines are split like a shell would; #
starts a comment.

Commands:
  alloc NAME SIZE [CAPS]     allocate and bind the pointer to NAME
  realloc NAME SIZE [CAPS]   reallocate NAME (CAPS 0 keeps the old ones)
  free NAME                  free NAME
  write NAME TEXT [OFFSET]   copy TEXT into NAME, overruns included
  append REGION              append a deferred region (uses --probe-size)
  stats                      print the free space per region
  trace [NAME]               print live blocks, reporting NAME as corrupt
  check                      verify the heap invariants

Example:
  heapctl run --tracing --poison comprehensive --probe-size 2MB script.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(args[0], os.Stdout)
		},
	}
	return cmd
}

func runScript(path string, out io.Writer) error {
	var (
		r    io.Reader
		name string
	)
	if path == "-" {
		r, name = os.Stdin, "stdin"
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open script: %w", err)
		}
		defer f.Close()
		r, name = f, filepath.Base(path)
	}

	a, _, err := newAllocator(out)
	if err != nil {
		return err
	}
	defer a.Close()

	printVerbose("Running script: %s\n", path)
	failed, err := newSession(a, out).run(r, name, runKeepGoing)
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d line(s) failed", failed)
	}
	return nil
}
