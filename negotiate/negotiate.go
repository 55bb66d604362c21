// Package negotiate tracks per-backend authorization state and decides
// which backend serves a request. Backends never fall back on their own;
// that decision lives here.
package negotiate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"memgate/access"
)

// DefaultProbeTimeout bounds how long a Pending probe may wait on an
// external decision before it is treated as Denied.
const DefaultProbeTimeout = 5 * time.Second

// Negotiator owns the permission-state table. It is an explicitly owned,
// lifecycle-scoped resource: create it with New and tear it down with Close.
type Negotiator struct {
	mu      sync.Mutex
	cond    *sync.Cond
	order   []access.Backend
	byID    map[access.BackendID]access.Backend
	states  map[access.BackendID]access.PermissionState
	probing map[access.BackendID]bool
	timers  map[access.BackendID]*time.Timer

	probeTimeout time.Duration
	log          *logger.Logger
	closed       bool
}

// New builds a negotiator over backends given in fallback priority order
// (broker, then ptrace, then direct). All backends start Unchecked.
func New(probeTimeout time.Duration, backends ...access.Backend) *Negotiator {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}

	n := &Negotiator{
		order:        backends,
		byID:         make(map[access.BackendID]access.Backend, len(backends)),
		states:       make(map[access.BackendID]access.PermissionState, len(backends)),
		probing:      make(map[access.BackendID]bool),
		timers:       make(map[access.BackendID]*time.Timer),
		probeTimeout: probeTimeout,
		log:          logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "negotiate")),
	}
	n.cond = sync.NewCond(&n.mu)
	for _, b := range backends {
		n.byID[b.ID()] = b
		n.states[b.ID()] = access.Unchecked
	}
	return n
}

// Close stops pending-probe timers. Recorded states are kept so a closing
// service can still report them.
func (n *Negotiator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
	n.cond.Broadcast()
}

// State returns the recorded state for one backend.
func (n *Negotiator) State(id access.BackendID) access.PermissionState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.states[id]
}

// States returns a snapshot of the whole table.
func (n *Negotiator) States() map[access.BackendID]access.PermissionState {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[access.BackendID]access.PermissionState, len(n.states))
	for id, s := range n.states {
		out[id] = s
	}
	return out
}

// Probe checks one backend's authorization. Probes are serialized per
// backend: a second caller waits for the in-flight probe and then observes
// its recorded state. A backend already past Unchecked is not re-probed;
// Denied in particular stays Denied until Reprobe.
func (n *Negotiator) Probe(ctx context.Context, id access.BackendID) (access.PermissionState, error) {
	n.mu.Lock()
	backend, ok := n.byID[id]
	if !ok {
		n.mu.Unlock()
		return access.Unchecked, fmt.Errorf("%w: unknown backend %q", access.ErrBackendUnavailable, id)
	}

	for n.probing[id] && !n.closed {
		n.cond.Wait()
	}
	if state := n.states[id]; state != access.Unchecked || n.closed {
		n.mu.Unlock()
		return state, nil
	}
	n.probing[id] = true
	n.mu.Unlock()

	// The backend call runs outside the lock; probes for other backends and
	// state reads proceed concurrently.
	state := backend.Probe(ctx)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.probing[id] = false
	n.cond.Broadcast()

	n.setStateLocked(id, state)
	return n.states[id], nil
}

// Reprobe is the explicit caller-initiated path out of Denied. It clears the
// recorded state and probes again.
func (n *Negotiator) Reprobe(ctx context.Context, id access.BackendID) (access.PermissionState, error) {
	n.mu.Lock()
	if _, ok := n.byID[id]; !ok {
		n.mu.Unlock()
		return access.Unchecked, fmt.Errorf("%w: unknown backend %q", access.ErrBackendUnavailable, id)
	}
	for n.probing[id] && !n.closed {
		n.cond.Wait()
	}
	n.states[id] = access.Unchecked
	if t := n.timers[id]; t != nil {
		t.Stop()
		delete(n.timers, id)
	}
	n.mu.Unlock()

	return n.Probe(ctx, id)
}

// ResolveProbe is the completion callback for a Pending probe, typically
// driven by the broker's consent prompt. It is a no-op unless the backend is
// actually Pending.
func (n *Negotiator) ResolveProbe(id access.BackendID, granted bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.states[id] != access.Pending {
		return
	}
	if t := n.timers[id]; t != nil {
		t.Stop()
		delete(n.timers, id)
	}
	if granted {
		n.states[id] = access.Granted
	} else {
		n.states[id] = access.Denied
	}
	n.log.Infoln("probe resolved:", string(id), "->", n.states[id].String())
}

func (n *Negotiator) setStateLocked(id access.BackendID, state access.PermissionState) {
	n.states[id] = state
	n.log.Debugln("backend", string(id), "state:", state.String())

	if state != access.Pending || n.closed {
		return
	}
	// A Pending probe either resolves through ResolveProbe or expires to
	// Denied after the probe timeout.
	n.timers[id] = time.AfterFunc(n.probeTimeout, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.timers, id)
		if n.states[id] == access.Pending {
			n.states[id] = access.Denied
			n.log.Infoln("probe timed out:", string(id))
		}
	})
}

// Candidates returns the backends eligible to serve a request, in order of
// preference. The named backend is probed if it was never checked (the
// caller asked for it explicitly); every other backend participates only if
// its state is already Granted, so selection never escalates privilege on
// its own.
func (n *Negotiator) Candidates(ctx context.Context, preferred access.BackendID) []access.Backend {
	if _, ok := n.byID[preferred]; ok && n.State(preferred) == access.Unchecked {
		if _, err := n.Probe(ctx, preferred); err != nil {
			n.log.Debugln("preferred probe failed:", err)
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var out []access.Backend
	if b, ok := n.byID[preferred]; ok && n.states[preferred] == access.Granted {
		out = append(out, b)
	}
	for _, b := range n.order {
		if b.ID() == preferred {
			continue
		}
		if n.states[b.ID()] == access.Granted {
			out = append(out, b)
		}
	}
	return out
}

// Select returns the single best usable backend for a request.
func (n *Negotiator) Select(ctx context.Context, preferred access.BackendID) (access.Backend, error) {
	candidates := n.Candidates(ctx, preferred)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no backend granted", access.ErrBackendUnavailable)
	}
	return candidates[0], nil
}

// ProbeAll probes every backend that is still Unchecked. Used by process
// enumeration, which merges results across all usable backends.
func (n *Negotiator) ProbeAll(ctx context.Context) {
	for _, b := range n.order {
		if n.State(b.ID()) == access.Unchecked {
			if _, err := n.Probe(ctx, b.ID()); err != nil {
				n.log.Debugln("probe failed:", err)
			}
		}
	}
}

// Granted returns all backends currently in the Granted state, in priority
// order.
func (n *Negotiator) Granted() []access.Backend {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []access.Backend
	for _, b := range n.order {
		if n.states[b.ID()] == access.Granted {
			out = append(out, b)
		}
	}
	return out
}
