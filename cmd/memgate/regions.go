//go:build linux

package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"memgate/parse"
)

var regionsWritable bool

func init() {
	rootCmd.AddCommand(regionsCmd)
	regionsCmd.Flags().BoolVarP(&regionsWritable, "writable", "w", false, "Only show writable regions")
}

var regionsCmd = &cobra.Command{
	Use:   "regions <pid>",
	Short: "Show a process's memory map",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegions,
}

func runRegions(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid pid %q", args[0])
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	regions, used, err := svc.ListRegions(context.Background(), pid)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "START\tEND\tSIZE\tPERMS\tTYPE\tPATH")
	var total uint64
	for _, r := range regions {
		if regionsWritable && !r.IsWritable() {
			continue
		}
		total += r.Size()
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			parse.FormatAddress(r.Start), parse.FormatAddress(r.End),
			humanize.IBytes(r.Size()), r.Perms, r.Kind(), r.Path)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d regions, %s mapped (via %s)\n",
		len(regions), humanize.IBytes(total), used)
	return nil
}
