//go:build linux

package procfs

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEntry(t *testing.T, root, pid, comm, cmdline string) {
	t.Helper()
	dir := filepath.Join(root, pid)
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "comm"), []byte(comm), 0o644); err != nil {
		t.Fatal(err)
	}
	if cmdline != "" {
		if err := os.WriteFile(filepath.Join(dir, "cmdline"), []byte(cmdline), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestListProcessesScan(t *testing.T) {
	root := t.TempDir()
	writeEntry(t, root, "1", "init\n", "/sbin/init\x00--boot\x00")
	writeEntry(t, root, "42", "kworker\n", "")
	if err := os.Mkdir(filepath.Join(root, "sys"), 0o755); err != nil {
		t.Fatal(err)
	}

	handles, err := listProcesses(root)
	if err != nil {
		t.Fatalf("listProcesses: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("got %d handles: %v", len(handles), handles)
	}
	byPID := map[int]int{handles[0].PID: 0, handles[1].PID: 1}
	init := handles[byPID[1]]
	if init.Name != "init" || init.Cmdline != "/sbin/init --boot" {
		t.Errorf("init = %+v", init)
	}
	if kw := handles[byPID[42]]; kw.Name != "kworker" || kw.Cmdline != "" {
		t.Errorf("kernel thread = %+v", kw)
	}
}

func TestListProcessesUnreadableRootIsEmpty(t *testing.T) {
	handles, err := listProcesses(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("unreadable root must degrade, got error %v", err)
	}
	if len(handles) != 0 {
		t.Errorf("handles = %v", handles)
	}
}

func TestExistsSelf(t *testing.T) {
	if !Exists(os.Getpid()) {
		t.Error("own pid reported missing")
	}
	if Exists(1 << 30) {
		t.Error("implausible pid reported present")
	}
}
