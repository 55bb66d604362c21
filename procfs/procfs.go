//go:build linux

// Package procfs enumerates processes through the documented /proc
// interface. Enumeration is best-effort: entries that vanish mid-scan are
// skipped and an inaccessible /proc degrades to an empty list.
package procfs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"memgate/access"
)

// ListProcesses scans /proc for numeric entries and resolves each one's name
// from comm and its command line from cmdline.
func ListProcesses() ([]access.ProcessHandle, error) {
	return listProcesses("/proc")
}

func listProcesses(root string) ([]access.ProcessHandle, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil
	}

	var handles []access.ProcessHandle
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		handle, err := readHandle(root, pid)
		if err != nil {
			// Process disappeared mid-scan.
			continue
		}
		handles = append(handles, handle)
	}
	return handles, nil
}

// Exists reports whether a process directory is present for pid.
func Exists(pid int) bool {
	_, err := os.Stat(filepath.Join("/proc", strconv.Itoa(pid)))
	return err == nil
}

func readHandle(root string, pid int) (access.ProcessHandle, error) {
	dir := filepath.Join(root, strconv.Itoa(pid))

	comm, err := os.ReadFile(filepath.Join(dir, "comm"))
	if err != nil {
		return access.ProcessHandle{}, err
	}

	handle := access.ProcessHandle{
		PID:  pid,
		Name: strings.TrimSpace(string(comm)),
	}

	// cmdline is optional: kernel threads have none.
	if raw, err := os.ReadFile(filepath.Join(dir, "cmdline")); err == nil && len(raw) > 0 {
		handle.Cmdline = strings.TrimRight(strings.ReplaceAll(string(raw), "\x00", " "), " ")
	}

	return handle, nil
}
