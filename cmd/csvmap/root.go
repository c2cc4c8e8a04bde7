package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version and BuildDate are set at build time:
//
//	go build -ldflags "-X main.Version=1.2.0 -X main.BuildDate=2024-06-01" ./cmd/csvmap
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "csvmap",
		Short: "Map CSV files onto a column schema",
		Long: `csvmap parses a delimited file, proposes a mapping from its header row to
the schema's columns, validates every row and writes the mapped records.

Example Usage:
  csvmap map contacts.csv --schema schemas/contacts.yaml --header-row 1
  csvmap map export.txt --delimiter tab --format xlsx --out contacts.xlsx
  csvmap schema check schemas/contacts.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log parse progress and debug output to stderr")

	root.AddCommand(newMapCmd(&verbose))
	root.AddCommand(newSchemaCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the application version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "csvmap")
			fmt.Fprintf(out, "Version:    %s\n", Version)
			fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
			fmt.Fprintf(out, "Go Version: %s\n", runtime.Version())
		},
	}
}
