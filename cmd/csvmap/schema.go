package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvmapper/internal/schema"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect schema files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check FILE",
		Short: "Load a schema file and list its columns",
		Long: `check compiles every rule in FILE and prints the columns. It fails on
unknown rules, duplicate keys and malformed YAML.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := schema.LoadFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "schema %q: %d columns\n\n", sc.Name, sc.Len())

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tLABEL\tREQUIRED\tDEFAULT\tRULES")
			for _, c := range sc.Columns() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					c.Key, c.DisplayName(), yesNo(c.Required), yesNo(c.Default), strings.Join(c.Rules, ","))
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rules",
		Short: "List the rule names a schema file may use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range schema.RuleNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	})
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
