//go:build linux

// Package backend_direct accesses a target's memory through its
// /proc/<pid>/mem pseudo-file. It requires the calling process itself to
// hold elevated privilege; probing never escalates anything.
package backend_direct

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/unix"

	"memgate/access"
	"memgate/access/memmap"
	"memgate/procfs"
)

type Backend struct {
	log *logger.Logger
}

var _ access.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "direct")),
	}
}

func (b *Backend) ID() access.BackendID { return access.BackendDirect }

// Probe checks for already-held privilege: either we are root or the kernel
// lets us open another process's memory file. Nothing is read or written.
func (b *Backend) Probe(ctx context.Context) access.PermissionState {
	if _, err := os.Stat("/proc/self/mem"); err != nil {
		return access.Unavailable
	}
	if os.Geteuid() == 0 {
		return access.Granted
	}
	f, err := os.OpenFile("/proc/1/mem", os.O_RDONLY, 0)
	if err == nil {
		f.Close()
		return access.Granted
	}
	return access.Denied
}

func (b *Backend) Read(ctx context.Context, pid int, addr uint64, size uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", access.ErrTimeout, err)
	}

	f, err := b.openMem(pid, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, size)
	r := io.NewSectionReader(f, int64(addr), int64(size))
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return buf[:n], fmt.Errorf("%w: %d of %d bytes at %#x", access.ErrPartialRead, n, size, addr)
		}
		return nil, mapErr(err, pid)
	}
	return buf, nil
}

func (b *Backend) Write(ctx context.Context, pid int, addr uint64, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", access.ErrTimeout, err)
	}

	f, err := b.openMem(pid, os.O_WRONLY)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := f.WriteAt(data, int64(addr))
	if err != nil {
		return n, mapErr(err, pid)
	}
	if n != len(data) {
		return n, fmt.Errorf("%w: %d of %d bytes at %#x", access.ErrPartialWrite, n, len(data), addr)
	}

	b.log.Debugln("wrote", n, "bytes to pid", pid)
	return n, nil
}

func (b *Backend) ListRegions(ctx context.Context, pid int) ([]memmap.Region, error) {
	regions, err := memmap.ReadProcessMaps(pid)
	if err != nil {
		return nil, mapErr(err, pid)
	}
	return regions, nil
}

func (b *Backend) ListProcesses(ctx context.Context) ([]access.ProcessHandle, error) {
	return procfs.ListProcesses()
}

func (b *Backend) openMem(pid int, flag int) (*os.File, error) {
	if !procfs.Exists(pid) {
		return nil, fmt.Errorf("%w: pid %d", access.ErrNoSuchProcess, pid)
	}
	f, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", pid), flag, 0)
	if err != nil {
		return nil, mapErr(err, pid)
	}
	return f, nil
}

func mapErr(err error, pid int) error {
	switch {
	case errors.Is(err, unix.ESRCH), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: pid %d", access.ErrNoSuchProcess, pid)
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES), errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", access.ErrAccessDenied, err)
	case errors.Is(err, unix.EIO), errors.Is(err, unix.EFAULT):
		// Unmapped or inaccessible range reads back as an access failure.
		return fmt.Errorf("%w: %v", access.ErrAccessDenied, err)
	}
	return err
}
