package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuapare/wmheap/layout"
)

var layoutYAML bool

func init() {
	cmd := newLayoutCmd()
	cmd.Flags().BoolVar(&layoutYAML, "yaml", false, "Print the layout as YAML")
	rootCmd.AddCommand(cmd)
}

func newLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Show the board memory layout",
		Long: `The layout command prints the region table of the selected board in
allocation order, with the capabilities and reserved areas of each region.

Example:
  heapctl layout
  heapctl layout --layout board.yaml
  heapctl layout --yaml > board.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout()
		},
	}
	return cmd
}

type layoutRegion struct {
	Name        string `json:"name"`
	Start       uint32 `json:"start"`
	Size        uint32 `json:"size"`
	Caps        string `json:"caps"`
	StaticEnd   uint32 `json:"static_end,omitempty"`
	TailReserve uint32 `json:"tail_reserve,omitempty"`
	Deferred    bool   `json:"deferred,omitempty"`
}

func runLayout() error {
	l, err := loadLayout()
	if err != nil {
		return err
	}

	if layoutYAML {
		data, err := l.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	if jsonOut {
		out := make([]layoutRegion, 0, len(l.Regions))
		specs, err := l.Specs()
		if err != nil {
			return err
		}
		for i, r := range l.Regions {
			out = append(out, layoutRegion{
				Name:        r.Name,
				Start:       uint32(r.Start),
				Size:        uint32(r.Size),
				Caps:        specs[i].Caps.String(),
				StaticEnd:   uint32(r.StaticEnd),
				TailReserve: uint32(r.TailReserve),
				Deferred:    r.Deferred,
			})
		}
		return printJSON(out)
	}

	printInfo("Board: %s\n\n", l.Board)
	printInfo("%-8s %-10s %12s %10s  %s\n", "REGION", "START", "SIZE", "", "CAPS")
	for _, r := range l.Regions {
		printInfo("%-8s %-10v %12s %10s  %s%s\n",
			r.Name, r.Start, numbers.Sprintf("%d", uint32(r.Size)), r.Size.String(),
			strings.Join(r.Caps, "|"), regionNotes(r))
	}
	return nil
}

func regionNotes(r layout.Region) string {
	var notes []string
	if r.StaticEnd != 0 {
		notes = append(notes, fmt.Sprintf("static data to %v", r.StaticEnd))
	}
	if r.TailReserve != 0 {
		notes = append(notes, numbers.Sprintf("%d-byte tail reserve", uint32(r.TailReserve)))
	}
	if r.Deferred {
		notes = append(notes, "deferred")
	}
	if len(notes) == 0 {
		return ""
	}
	return "  (" + strings.Join(notes, ", ") + ")"
}
