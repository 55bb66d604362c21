package access

import (
	"context"

	"memgate/access/memmap"
)

// BackendID names one concrete privilege mechanism.
type BackendID string

const (
	// BackendBroker reaches the target through an external elevated-permission
	// helper executing shell commands.
	BackendBroker BackendID = "broker"

	// BackendPtrace attaches to the target with the tracing interface for the
	// duration of each operation.
	BackendPtrace BackendID = "ptrace"

	// BackendDirect opens the target's memory pseudo-file and requires the
	// caller itself to hold elevated privilege.
	BackendDirect BackendID = "direct"
)

// Priority is the fixed fallback order used when a preferred backend is not
// usable. Backends never consult this themselves; fallback is solely the
// negotiator's decision.
var Priority = []BackendID{BackendBroker, BackendPtrace, BackendDirect}

// Backend is one privilege-specific mechanism for accessing another
// process's memory. Implementations report short transfers as
// ErrPartialRead/ErrPartialWrite and never silently truncate.
type Backend interface {
	ID() BackendID

	// Probe checks whether the backend is currently authorized. It is
	// side-effect-free where the mechanism allows; the broker backend may
	// trigger an external consent prompt and report Pending.
	Probe(ctx context.Context) PermissionState

	// Read copies size bytes at addr out of the target.
	Read(ctx context.Context, pid int, addr uint64, size uint32) ([]byte, error)

	// Write copies data into the target at addr and returns the number of
	// bytes written.
	Write(ctx context.Context, pid int, addr uint64, data []byte) (int, error)

	// ListRegions returns the target's memory map as this backend sees it,
	// sorted by ascending start address.
	ListRegions(ctx context.Context, pid int) ([]memmap.Region, error)

	// ListProcesses enumerates processes visible to this backend.
	ListProcesses(ctx context.Context) ([]ProcessHandle, error)
}
