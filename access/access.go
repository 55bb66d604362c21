// Package access defines the contract shared by the memory access service
// and its privilege backends: process and region types, the backend
// interface, permission states and the error taxonomy.
package access

import "fmt"

// ProcessHandle identifies a running process at enumeration time. Handles
// are ephemeral: they are recomputed on every enumeration call and carry no
// open resources.
type ProcessHandle struct {
	PID     int      `json:"pid"`
	Name    string   `json:"name"`
	Cmdline string   `json:"cmdline,omitempty"`
	// PackageNames holds owning-package hints. Only the broker backend can
	// supply these.
	PackageNames []string `json:"packageNames,omitempty"`
}

func (p ProcessHandle) String() string {
	return fmt.Sprintf("%d (%s)", p.PID, p.Name)
}
