package main

import (
    "fmt"
    "runtime"

    "github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
    Use:   "version",
    Short: "Print version information",
    Run: func(cmd *cobra.Command, args []string) {
        fmt.Fprintf(cmd.OutOrStdout(), "pdftrio %s\n", Version)
        fmt.Fprintf(cmd.OutOrStdout(), "  Go: %s\n", runtime.Version())
    },
}
