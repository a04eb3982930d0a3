package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// 构建时通过 -ldflags "-X main.version=... -X main.commit=..." 注入
var (
	version = "dev"
	commit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the controller version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "shongo-controller %s (%s, %s)\n", version, commit, runtime.Version())
	},
}
