//go:build linux

package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"memgate/access"
)

var probeAgain bool

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().BoolVar(&probeAgain, "again", false, "Discard cached verdicts and probe from scratch")
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe every backend and report its permission state",
	Long: "Runs each backend's non-escalating permission check. A Denied\n" +
		"verdict is sticky for the process lifetime unless --again is\n" +
		"given.",
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	neg := svc.Negotiator()
	if probeAgain {
		for _, id := range access.Priority {
			if _, err := neg.Reprobe(ctx, id); err != nil {
				return err
			}
		}
	} else {
		neg.ProbeAll(ctx)
	}

	states := neg.States()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BACKEND\tSTATE")
	for _, id := range access.Priority {
		fmt.Fprintf(w, "%s\t%s\n", id, states[id])
	}
	return w.Flush()
}
