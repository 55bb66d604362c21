//go:build linux

// memgate — read, write and map the memory of other processes through
// whichever privilege backend the host grants: a brokered elevated shell,
// ptrace attach, or direct /proc/<pid>/mem access.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"memgate/access"
	"memgate/service"
)

var (
	configPath  string
	backendName string
)

var rootCmd = &cobra.Command{
	Use:   "memgate",
	Short: "Process memory access across privilege backends",
	Long: "Reads, writes and enumerates the memory of other processes.\n" +
		"Operations are served by the first granted backend in preference\n" +
		"order: brokered shell, ptrace attach, direct /proc access.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&backendName, "backend", "b", "", "Preferred backend (broker|ptrace|direct)")
}

// newService builds the backend stack from the config file and flags.
// Callers own the returned service and must Close it.
func newService() (*service.Service, error) {
	cfg := service.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = service.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
	}
	if backendName != "" {
		switch access.BackendID(backendName) {
		case access.BackendBroker, access.BackendPtrace, access.BackendDirect:
			cfg.PreferredBackend = backendName
		default:
			return nil, fmt.Errorf("unknown backend %q", backendName)
		}
	}
	return service.NewStack(cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
