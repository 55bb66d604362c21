//go:build linux

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"memgate/parse"
	"memgate/scan"
)

var searchMax int

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchMax, "max", "m", 100, "Stop after this many matches (0 for no limit)")
}

var searchCmd = &cobra.Command{
	Use:   "search <pid> <pattern>",
	Short: "Scan readable memory for a byte pattern",
	Long: "Scans every readable region for a comma-separated hex pattern;\n" +
		"?? matches any byte. Example: de,ad,??,ef",
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid pid %q", args[0])
	}
	pattern, err := scan.Parse(args[1])
	if err != nil {
		return err
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	matches, used, err := svc.SearchMemory(context.Background(), pid, pattern, searchMax)
	if err != nil {
		return err
	}
	for _, addr := range matches {
		fmt.Fprintln(cmd.OutOrStdout(), parse.FormatAddress(addr))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d matches for %s (via %s)\n", len(matches), pattern, used)
	return nil
}
