//go:build linux

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"memgate/parse"
)

var writeYes bool

func init() {
	rootCmd.AddCommand(writeCmd)
	writeCmd.Flags().BoolVarP(&writeYes, "yes", "y", false, "Confirm the destructive write")
}

var writeCmd = &cobra.Command{
	Use:   "write <pid> <address> <hex-payload>",
	Short: "Write bytes into a process",
	Long: "Writes the hex payload (e.g. deadbeef) into the target at the\n" +
		"given address. Refuses to run without --yes: writing another\n" +
		"process's memory is destructive and cannot be undone.",
	Args: cobra.ExactArgs(3),
	RunE: runWrite,
}

func runWrite(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid pid %q", args[0])
	}
	addr, err := parse.Address(args[1])
	if err != nil {
		return err
	}
	payload, err := parse.HexPayload(args[2])
	if err != nil {
		return err
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.WriteMemory(context.Background(), pid, addr, payload, writeYes)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes at %s (via %s)\n",
		len(payload), parse.FormatAddress(addr), res.Backend)
	return nil
}
