//go:build linux

package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(psCmd)
}

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List visible processes",
	Long: "Merges process listings from every granted backend, deduplicated\n" +
		"by pid. The broker view may include processes the caller's own\n" +
		"uid cannot see.",
	Args: cobra.NoArgs,
	RunE: runPs,
}

func runPs(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	procs := svc.ListProcesses(context.Background())
	if len(procs) == 0 {
		return fmt.Errorf("no processes visible; is any backend granted?")
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PID\tNAME\tPACKAGES")
	for _, p := range procs {
		fmt.Fprintf(w, "%d\t%s\t%s\n", p.PID, p.Name, strings.Join(p.PackageNames, ","))
	}
	return w.Flush()
}
