package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), versionText())
	},
}

// versionText is shared by the version command and --version.
func versionText() string {
	return fmt.Sprintf("heapctl %s\n  commit: %s\n  built: %s\n", version, commit, date)
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionText())
	rootCmd.AddCommand(versionCmd)
}
