package access

// PermissionState tracks a backend's authorization. States are process-wide
// and persist across calls; everything else in the system is request-scoped.
type PermissionState int

const (
	// Unchecked means the backend has never been probed.
	Unchecked PermissionState = iota

	// Unavailable means the backend's mechanism does not exist on this host
	// (no broker binary, no procfs). Unlike Denied it is not worth re-probing
	// without a host change.
	Unavailable

	// Pending means a probe is waiting on an external decision, typically a
	// consent prompt shown by the broker.
	Pending

	// Granted means the backend may be used for reads and writes.
	Granted

	// Denied means the backend refused authorization. Denied only transitions
	// back to Pending on an explicit caller-initiated re-probe.
	Denied
)

func (s PermissionState) String() string {
	switch s {
	case Unchecked:
		return "unchecked"
	case Unavailable:
		return "unavailable"
	case Pending:
		return "pending"
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	}
	return "unknown"
}

// Usable reports whether a backend in this state may serve requests.
func (s PermissionState) Usable() bool {
	return s == Granted
}
