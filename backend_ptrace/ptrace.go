//go:build linux

// Package backend_ptrace accesses a target by attaching with
// PTRACE_ATTACH, moving bytes with PTRACE_PEEKDATA/POKEDATA and detaching.
// Attach and detach form a scoped acquisition: detach always runs, so a
// target is never left stopped. Only one tracer may attach to a pid at a
// time, so attaches to the same pid are serialized.
package backend_ptrace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/unix"

	"memgate/access"
	"memgate/access/memmap"
	"memgate/procfs"
)

type Backend struct {
	log *logger.Logger

	mu       sync.Mutex
	pidLocks map[int]*sync.Mutex
}

var _ access.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "ptrace")),
		pidLocks: make(map[int]*sync.Mutex),
	}
}

func (b *Backend) ID() access.BackendID { return access.BackendPtrace }

// Probe inspects Yama's ptrace scope without touching any target. Scope 0
// allows same-uid attaches; root passes any scope below 3.
func (b *Backend) Probe(ctx context.Context) access.PermissionState {
	if _, err := os.Stat("/proc/self/status"); err != nil {
		return access.Unavailable
	}

	raw, err := os.ReadFile("/proc/sys/kernel/yama/ptrace_scope")
	if err != nil {
		// No Yama: classic ptrace semantics.
		return access.Granted
	}
	scope := strings.TrimSpace(string(raw))
	switch {
	case scope == "0":
		return access.Granted
	case scope == "3":
		return access.Denied
	case os.Geteuid() == 0:
		return access.Granted
	}
	return access.Denied
}

func (b *Backend) Read(ctx context.Context, pid int, addr uint64, size uint32) ([]byte, error) {
	buf := make([]byte, size)
	err := b.withAttach(ctx, pid, func() error {
		n, err := unix.PtracePeekData(pid, uintptr(addr), buf)
		if err != nil {
			return mapErr(err, pid)
		}
		if n != int(size) {
			return fmt.Errorf("%w: %d of %d bytes at %#x", access.ErrPartialRead, n, size, addr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (b *Backend) Write(ctx context.Context, pid int, addr uint64, data []byte) (int, error) {
	written := 0
	err := b.withAttach(ctx, pid, func() error {
		n, err := unix.PtracePokeData(pid, uintptr(addr), data)
		written = n
		if err != nil {
			return mapErr(err, pid)
		}
		if n != len(data) {
			return fmt.Errorf("%w: %d of %d bytes at %#x", access.ErrPartialWrite, n, len(data), addr)
		}
		return nil
	})
	return written, err
}

func (b *Backend) ListRegions(ctx context.Context, pid int) ([]memmap.Region, error) {
	// The tracing view of the map is the caller's procfs view; no attach is
	// needed to read it.
	regions, err := memmap.ReadProcessMaps(pid)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: pid %d", access.ErrNoSuchProcess, pid)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %v", access.ErrAccessDenied, err)
		}
		return nil, err
	}
	return regions, nil
}

func (b *Backend) ListProcesses(ctx context.Context) ([]access.ProcessHandle, error) {
	return procfs.ListProcesses()
}

// withAttach runs fn between attach and detach. The whole sequence executes
// on one locked OS thread because the kernel ties a tracer to the attaching
// thread. A caller that stops waiting abandons the result; the sequence
// still finishes and detaches on its own.
func (b *Backend) withAttach(ctx context.Context, pid int, fn func() error) error {
	if !procfs.Exists(pid) {
		return fmt.Errorf("%w: pid %d", access.ErrNoSuchProcess, pid)
	}

	done := make(chan error, 1)
	go func() {
		lock := b.pidLock(pid)
		lock.Lock()
		defer lock.Unlock()

		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if err := unix.PtraceAttach(pid); err != nil {
			done <- fmt.Errorf("attach pid %d: %w", pid, mapErr(err, pid))
			return
		}

		var status unix.WaitStatus
		_, waitErr := unix.Wait4(pid, &status, 0, nil)

		var opErr error
		if waitErr != nil {
			opErr = fmt.Errorf("wait for stop of pid %d: %w", pid, mapErr(waitErr, pid))
		} else {
			opErr = fn()
		}

		if derr := unix.PtraceDetach(pid); derr != nil {
			b.log.Warn("detach failed for pid ", pid, ": ", derr)
			if opErr == nil {
				opErr = mapErr(derr, pid)
			}
		}
		done <- opErr
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", access.ErrTimeout, ctx.Err())
	}
}

func (b *Backend) pidLock(pid int) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.pidLocks[pid]
	if !ok {
		lock = &sync.Mutex{}
		b.pidLocks[pid] = lock
	}
	return lock
}

func mapErr(err error, pid int) error {
	switch {
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("%w: pid %d", access.ErrNoSuchProcess, pid)
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return fmt.Errorf("%w: %v", access.ErrAccessDenied, err)
	case errors.Is(err, unix.EIO), errors.Is(err, unix.EFAULT):
		return fmt.Errorf("%w: %v", access.ErrAccessDenied, err)
	}
	return err
}
