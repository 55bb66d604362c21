//go:build linux

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"memgate/hexdump"
	"memgate/parse"
)

var (
	readOut   string
	readPlain bool
)

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().StringVarP(&readOut, "out", "o", "", "Write raw bytes to a file instead of dumping")
	readCmd.Flags().BoolVar(&readPlain, "plain", false, "Hexdump without colors")
}

var readCmd = &cobra.Command{
	Use:   "read <pid> <address> <size>",
	Short: "Read a byte range from a process",
	Long: "Copies size bytes at address out of the target. The address is\n" +
		"hex (0x prefix optional); size is decimal bytes.",
	Args: cobra.ExactArgs(3),
	RunE: runRead,
}

func runRead(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid pid %q", args[0])
	}
	addr, err := parse.Address(args[1])
	if err != nil {
		return err
	}
	rawSize, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q", args[2])
	}
	size, err := parse.Size(rawSize)
	if err != nil {
		return err
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.ReadMemory(context.Background(), pid, addr, size)
	if err != nil {
		return err
	}

	if readOut != "" {
		if err := os.WriteFile(readOut, res.Data, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s to %s (via %s)\n",
			humanize.IBytes(uint64(len(res.Data))), readOut, res.Backend)
		return nil
	}

	if readPlain {
		fmt.Fprint(cmd.OutOrStdout(), hexdump.DumpPlain(res.Data, addr))
	} else {
		fmt.Fprint(cmd.OutOrStdout(), hexdump.DumpWithOffset(res.Data, addr))
	}
	return nil
}
