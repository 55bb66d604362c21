// Package backend_broker accesses a target's memory through an external
// elevated-permission broker that executes shell commands on the caller's
// behalf. Every transfer moves through a staging artifact that never
// outlives the operation, whatever the exit path.
package backend_broker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"memgate/access"
	"memgate/access/memmap"
)

const (
	// markerNoProcess is written by the staged script when the target's proc
	// directory is missing, so the caller can tell "no process" from "dd
	// failed".
	markerNoProcess = "nosuchproc"

	defaultTimeout      = 10 * time.Second
	defaultPollInterval = 50 * time.Millisecond
)

type Config struct {
	// Shell is the broker argv prefix, e.g. {"su", "-c"}.
	Shell []string

	// StagingDir holds per-operation staging artifacts. Defaults to the
	// system temporary directory.
	StagingDir string

	// Timeout bounds each brokered command, marker wait included.
	Timeout time.Duration

	// PollInterval is the marker poll fallback period.
	PollInterval time.Duration
}

func (c *Config) fillDefaults() {
	if len(c.Shell) == 0 {
		c.Shell = []string{"su", "-c"}
	}
	if c.StagingDir == "" {
		c.StagingDir = os.TempDir()
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
}

type Backend struct {
	cfg Config
	run Runner
	log *logger.Logger
}

var _ access.Backend = (*Backend)(nil)

func New(cfg Config) *Backend {
	cfg.fillDefaults()
	return &Backend{
		cfg: cfg,
		run: NewShellRunner(cfg.Shell...),
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "broker")),
	}
}

// NewWithRunner swaps the command runner, used by tests and by embedders
// whose broker is not an argv prefix.
func NewWithRunner(cfg Config, run Runner) *Backend {
	cfg.fillDefaults()
	return &Backend{
		cfg: cfg,
		run: run,
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "broker")),
	}
}

func (b *Backend) ID() access.BackendID { return access.BackendBroker }

// Probe asks the broker who it is. This may surface a consent prompt on the
// broker's side; a probe that runs out of time is therefore Pending, not
// Denied — the negotiator decides when Pending expires.
func (b *Backend) Probe(ctx context.Context) access.PermissionState {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	out, err := b.run.Run(ctx, "id -u")
	switch {
	case err == nil:
		if strings.TrimSpace(string(out)) == "0" {
			return access.Granted
		}
		b.log.Infoln("broker runs unprivileged, denying")
		return access.Denied
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return access.Unavailable
	case ctx.Err() != nil:
		return access.Pending
	}
	return access.Denied
}

func (b *Backend) Read(ctx context.Context, pid int, addr uint64, size uint32) ([]byte, error) {
	stage, marker := b.stagePair("read")
	defer os.Remove(stage)
	defer os.Remove(marker)

	script := fmt.Sprintf(
		"test -d /proc/%d || { echo %s > %s; exit 0; }; "+
			"dd if=/proc/%d/mem of=%s bs=1 skip=%d count=%d 2>/dev/null; echo $? > %s",
		pid, markerNoProcess, marker, pid, stage, addr, size, marker)

	if err := b.execStaged(ctx, pid, script, marker); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(stage)
	if err != nil {
		return nil, fmt.Errorf("reading staged artifact: %w", err)
	}
	if len(data) != int(size) {
		return data, fmt.Errorf("%w: %d of %d bytes at %#x", access.ErrPartialRead, len(data), size, addr)
	}
	return data, nil
}

func (b *Backend) Write(ctx context.Context, pid int, addr uint64, data []byte) (int, error) {
	stage, marker := b.stagePair("write")
	defer os.Remove(stage)
	defer os.Remove(marker)

	// The payload is staged locally; the broker copies it into the target.
	if err := os.WriteFile(stage, data, 0o644); err != nil {
		return 0, fmt.Errorf("staging payload: %w", err)
	}

	script := fmt.Sprintf(
		"test -d /proc/%d || { echo %s > %s; exit 0; }; "+
			"dd if=%s of=/proc/%d/mem bs=1 seek=%d count=%d conv=notrunc 2>/dev/null; echo $? > %s",
		pid, markerNoProcess, marker, stage, pid, addr, len(data), marker)

	if err := b.execStaged(ctx, pid, script, marker); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (b *Backend) ListRegions(ctx context.Context, pid int) ([]memmap.Region, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	script := fmt.Sprintf("test -d /proc/%d && cat /proc/%d/maps", pid, pid)
	out, err := b.run.Run(ctx, script)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", access.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", access.ErrNoSuchProcess, err)
	}
	return memmap.Parse(strings.NewReader(string(out)))
}

// ListProcesses enumerates through the broker's ps, so it sees processes the
// caller's own uid cannot. Names that look like package identifiers become
// owning-package hints.
func (b *Backend) ListProcesses(ctx context.Context) ([]access.ProcessHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	out, err := b.run.Run(ctx, "ps -A -o pid=,name=")
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", access.ErrTimeout, err)
		}
		return nil, fmt.Errorf("broker process listing: %w", err)
	}

	var handles []access.ProcessHandle
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		handle := access.ProcessHandle{PID: pid, Name: fields[1]}
		if strings.Contains(handle.Name, ".") && !strings.Contains(handle.Name, "/") {
			handle.PackageNames = []string{handle.Name}
		}
		handles = append(handles, handle)
	}
	return handles, nil
}

// execStaged dispatches a staged script and waits for its completion
// marker. A successful runner may return before or after the broker
// finishes, so the marker is authoritative; a failed runner means the broker
// invocation itself was refused and waiting for a marker would only burn the
// timeout.
func (b *Backend) execStaged(ctx context.Context, pid int, script, marker string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		_, err := b.run.Run(ctx, script)
		runErr <- err
	}()

	type markerResult struct {
		status string
		err    error
	}
	markerRes := make(chan markerResult, 1)
	go func() {
		status, err := awaitMarker(ctx, marker, b.cfg.PollInterval)
		markerRes <- markerResult{status, err}
	}()

	for running := runErr; ; {
		select {
		case res := <-markerRes:
			if res.err != nil {
				return res.err
			}
			return statusErr(pid, res.status)
		case err := <-running:
			if err == nil {
				// Runner done cleanly; only the marker remains.
				running = nil
				continue
			}
			// The invocation failed. The script may still have run far
			// enough to land the marker; check once before giving up.
			if status, ok := readMarker(marker); ok {
				return statusErr(pid, status)
			}
			if ctx.Err() != nil {
				return fmt.Errorf("%w: broker did not complete", access.ErrTimeout)
			}
			return fmt.Errorf("%w: %v", access.ErrAccessDenied, err)
		}
	}
}

func statusErr(pid int, status string) error {
	switch status {
	case "0":
		return nil
	case markerNoProcess:
		return fmt.Errorf("%w: pid %d", access.ErrNoSuchProcess, pid)
	}
	return fmt.Errorf("%w: broker command exited with status %s", access.ErrAccessDenied, status)
}

func (b *Backend) stagePair(op string) (stage, marker string) {
	name := fmt.Sprintf("memgate-%s-%d-%04x", op, time.Now().UnixNano(), rand.Intn(0x10000))
	stage = filepath.Join(b.cfg.StagingDir, name)
	return stage, stage + ".done"
}
