package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"memgate/access"
	"memgate/access/memmap"
	"memgate/negotiate"
	"memgate/scan"
)

// memBackend serves reads and writes from an in-memory region table.
type memBackend struct {
	id         access.BackendID
	probeState access.PermissionState
	regions    map[int][]fakeRegion
	procs      []access.ProcessHandle

	readCalls  atomic.Int32
	writeCalls atomic.Int32
	failWith   error // forced failure for every read/write
}

type fakeRegion struct {
	start uint64
	perms string
	data  []byte
}

func newMemBackend(id access.BackendID, state access.PermissionState) *memBackend {
	return &memBackend{
		id:         id,
		probeState: state,
		regions:    make(map[int][]fakeRegion),
	}
}

func (m *memBackend) addRegion(pid int, start uint64, perms string, data []byte) {
	m.regions[pid] = append(m.regions[pid], fakeRegion{start: start, perms: perms, data: data})
}

func (m *memBackend) ID() access.BackendID                          { return m.id }
func (m *memBackend) Probe(ctx context.Context) access.PermissionState { return m.probeState }

func (m *memBackend) locate(pid int, addr uint64, size uint32) (*fakeRegion, uint64, error) {
	regions, ok := m.regions[pid]
	if !ok {
		return nil, 0, fmt.Errorf("%w: pid %d", access.ErrNoSuchProcess, pid)
	}
	for i := range regions {
		r := &regions[i]
		end := r.start + uint64(len(r.data))
		if addr >= r.start && addr+uint64(size) <= end {
			return r, addr - r.start, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: %#x unmapped", access.ErrAccessDenied, addr)
}

func (m *memBackend) Read(ctx context.Context, pid int, addr uint64, size uint32) ([]byte, error) {
	m.readCalls.Add(1)
	if m.failWith != nil {
		return nil, m.failWith
	}
	r, off, err := m.locate(pid, addr, size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, r.data[off:])
	return out, nil
}

func (m *memBackend) Write(ctx context.Context, pid int, addr uint64, data []byte) (int, error) {
	m.writeCalls.Add(1)
	if m.failWith != nil {
		return 0, m.failWith
	}
	r, off, err := m.locate(pid, addr, uint32(len(data)))
	if err != nil {
		return 0, err
	}
	copy(r.data[off:], data)
	return len(data), nil
}

func (m *memBackend) ListRegions(ctx context.Context, pid int) ([]memmap.Region, error) {
	var out []memmap.Region
	for _, r := range m.regions[pid] {
		out = append(out, memmap.Region{
			Start: r.start,
			End:   r.start + uint64(len(r.data)),
			Perms: r.perms,
		})
	}
	return out, nil
}

func (m *memBackend) ListProcesses(ctx context.Context) ([]access.ProcessHandle, error) {
	return m.procs, nil
}

func newTestService(backends ...access.Backend) *Service {
	return New(negotiate.New(negotiate.DefaultProbeTimeout, backends...), Options{})
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	b := newMemBackend(access.BackendBroker, access.Granted)
	b.addRegion(4242, 0x400000, "rw-p", make([]byte, 4096))
	svc := newTestService(b)
	defer svc.Close()
	ctx := context.Background()

	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	if _, err := svc.WriteMemory(ctx, 4242, 0x400010, payload, true); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}

	res, err := svc.ReadMemory(ctx, 4242, 0x400010, 4)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if string(res.Data) != string(payload) {
		t.Errorf("read back %x, want %x", res.Data, payload)
	}
	if res.Backend != access.BackendBroker {
		t.Errorf("backend = %s", res.Backend)
	}
}

func TestWriteRequiresConfirmation(t *testing.T) {
	b := newMemBackend(access.BackendBroker, access.Granted)
	b.addRegion(4242, 0x400000, "rw-p", make([]byte, 64))
	svc := newTestService(b)
	defer svc.Close()

	_, err := svc.WriteMemory(context.Background(), 4242, 0x400000, []byte{1}, false)
	if !errors.Is(err, access.ErrWriteNotConfirmed) {
		t.Fatalf("want ErrWriteNotConfirmed, got %v", err)
	}
	if b.writeCalls.Load() != 0 {
		t.Errorf("backend touched despite missing confirmation")
	}
}

func TestReadOverflowNeverTouchesBackend(t *testing.T) {
	b := newMemBackend(access.BackendBroker, access.Granted)
	svc := newTestService(b)
	defer svc.Close()

	_, err := svc.ReadMemory(context.Background(), 4242, ^uint64(0)-2, 16)
	if !errors.Is(err, access.ErrSizeOutOfRange) {
		t.Fatalf("want ErrSizeOutOfRange, got %v", err)
	}
	if b.readCalls.Load() != 0 {
		t.Errorf("backend invoked for an overflowing range")
	}
}

func TestFallbackToNextGrantedBackend(t *testing.T) {
	denied := newMemBackend(access.BackendBroker, access.Granted)
	denied.failWith = fmt.Errorf("%w: refused", access.ErrAccessDenied)
	working := newMemBackend(access.BackendPtrace, access.Granted)
	working.addRegion(7, 0x1000, "r--p", []byte("hello"))

	svc := newTestService(denied, working)
	defer svc.Close()
	svc.Negotiator().ProbeAll(context.Background())

	res, err := svc.ReadMemory(context.Background(), 7, 0x1000, 5)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if res.Backend != access.BackendPtrace {
		t.Errorf("served by %s, want ptrace", res.Backend)
	}
	if denied.readCalls.Load() != 1 {
		t.Errorf("preferred backend not tried first")
	}
}

func TestPartialWriteIsFinal(t *testing.T) {
	first := newMemBackend(access.BackendBroker, access.Granted)
	first.failWith = fmt.Errorf("%w: 2 of 4 bytes", access.ErrPartialWrite)
	second := newMemBackend(access.BackendPtrace, access.Granted)
	second.addRegion(7, 0x1000, "rw-p", make([]byte, 16))

	svc := newTestService(first, second)
	defer svc.Close()
	svc.Negotiator().ProbeAll(context.Background())

	_, err := svc.WriteMemory(context.Background(), 7, 0x1000, []byte{1, 2, 3, 4}, true)
	if !errors.Is(err, access.ErrPartialWrite) {
		t.Fatalf("want ErrPartialWrite, got %v", err)
	}
	if second.writeCalls.Load() != 0 {
		t.Errorf("partial write must not fall back to another backend")
	}
}

func TestNoGrantedBackend(t *testing.T) {
	b := newMemBackend(access.BackendBroker, access.Denied)
	svc := newTestService(b)
	defer svc.Close()

	_, _, err := svc.ListRegions(context.Background(), 4242)
	if !errors.Is(err, access.ErrBackendUnavailable) {
		t.Fatalf("want ErrBackendUnavailable, got %v", err)
	}
}

func TestListProcessesMergesAndDeduplicates(t *testing.T) {
	broker := newMemBackend(access.BackendBroker, access.Granted)
	broker.procs = []access.ProcessHandle{
		{PID: 10, Name: "com.example.app", PackageNames: []string{"com.example.app"}},
		{PID: 30, Name: "zygote"},
	}
	direct := newMemBackend(access.BackendDirect, access.Granted)
	direct.procs = []access.ProcessHandle{
		{PID: 10, Name: "example"},
		{PID: 20, Name: "init"},
	}

	svc := newTestService(broker, direct)
	defer svc.Close()

	procs := svc.ListProcesses(context.Background())
	if len(procs) != 3 {
		t.Fatalf("got %d processes, want 3: %v", len(procs), procs)
	}
	if procs[0].PID != 10 || procs[1].PID != 20 || procs[2].PID != 30 {
		t.Errorf("not sorted by pid: %v", procs)
	}
	if procs[0].Name != "com.example.app" {
		t.Errorf("first-seen handle should win: %v", procs[0])
	}
}

func TestSearchPatternLargerThanTransferLimit(t *testing.T) {
	b := newMemBackend(access.BackendBroker, access.Granted)
	b.addRegion(7, 0x1000, "r--p", make([]byte, 256))

	svc := New(negotiate.New(negotiate.DefaultProbeTimeout, b), Options{MaxTransfer: 2})
	defer svc.Close()

	pattern, err := scan.Parse("de,ad,be,ef")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, _, err = svc.SearchMemory(context.Background(), 7, pattern, 0)
	if !errors.Is(err, access.ErrSizeOutOfRange) {
		t.Fatalf("want ErrSizeOutOfRange, got %v", err)
	}
	// The cursor must never enter the region, let alone walk out of it.
	if calls := b.readCalls.Load(); calls != 0 {
		t.Errorf("backend read %d times during a rejected search", calls)
	}
}

func TestSearchMemory(t *testing.T) {
	b := newMemBackend(access.BackendBroker, access.Granted)
	data := make([]byte, 256)
	copy(data[10:], []byte{0xde, 0xad, 0x42, 0xef})
	copy(data[100:], []byte{0xde, 0xad, 0x99, 0xef})
	b.addRegion(7, 0x8000, "r--p", data)
	b.addRegion(7, 0x9000, "---p", data) // unreadable, must be skipped

	svc := newTestService(b)
	defer svc.Close()

	pattern, err := scan.Parse("de,ad,??,ef")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	matches, used, err := svc.SearchMemory(context.Background(), 7, pattern, 0)
	if err != nil {
		t.Fatalf("SearchMemory: %v", err)
	}
	if used != access.BackendBroker {
		t.Errorf("used = %s", used)
	}
	if len(matches) != 2 || matches[0] != 0x800a || matches[1] != 0x8064 {
		t.Errorf("matches = %#x", matches)
	}
}
