package memmap

import (
	"strings"
	"testing"
)

const sampleMaps = `00400000-00452000 r-xp 00000000 08:01 123 /bin/app
00651000-00652000 r--p 00051000 08:01 123 /bin/app
00652000-00655000 rw-p 00052000 08:01 123 /bin/app
01a2b000-01a4c000 rw-p 00000000 00:00 0 [heap]
7f2c34000000-7f2c34021000 rw-p 00000000 00:00 0
7f2c38a00000-7f2c38bc0000 r-xp 00000000 08:01 456 /usr/lib/libc-2.31.so
7ffd1c0de000-7ffd1c0ff000 rw-p 00000000 00:00 0 [stack]
`

func TestParseRegionLine(t *testing.T) {
	regions, err := Parse(strings.NewReader("00400000-00452000 r-xp 00000000 08:01 123 /bin/app\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}

	r := regions[0]
	if r.Start != 0x00400000 || r.End != 0x00452000 {
		t.Errorf("range = %#x-%#x", r.Start, r.End)
	}
	if r.Size() != 0x52000 {
		t.Errorf("size = %#x, want 0x52000", r.Size())
	}
	if r.Perms != "r-xp" || !r.IsReadable() || r.IsWritable() || !r.IsExecutable() || r.IsShared() {
		t.Errorf("perms = %q", r.Perms)
	}
	if r.Path != "/bin/app" || r.Kind() != "file" {
		t.Errorf("path = %q kind = %q", r.Path, r.Kind())
	}
	if r.Inode != 123 || r.Dev != "08:01" {
		t.Errorf("dev/inode = %q/%d", r.Dev, r.Inode)
	}
}

func TestParseSortedNonOverlapping(t *testing.T) {
	regions, err := Parse(strings.NewReader(sampleMaps))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(regions) != 7 {
		t.Fatalf("got %d regions, want 7", len(regions))
	}
	for i := 1; i < len(regions); i++ {
		if regions[i].Start < regions[i-1].Start {
			t.Errorf("regions not sorted at %d", i)
		}
		if regions[i].Start < regions[i-1].End {
			t.Errorf("regions overlap at %d: %v / %v", i, regions[i-1], regions[i])
		}
	}
}

func TestParseSkipsMalformed(t *testing.T) {
	input := "garbage\n" +
		"00400000-00452000 r-xp 00000000 08:01 123 /bin/app\n" +
		"too few fields\n" +
		"zzzz-00452000 r-xp 00000000 08:01 123\n" + // bad hex
		"00500000-00400000 r-xp 00000000 08:01 123\n" + // end <= start
		"01a2b000-01a4c000 rw-p 00000000 00:00 0 [heap]\n"

	regions, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(regions) != 2 {
		t.Fatalf("got %d regions, want 2 (malformed lines skipped)", len(regions))
	}
	if regions[0].Path != "/bin/app" || regions[1].Path != "[heap]" {
		t.Errorf("surviving regions wrong: %v", regions)
	}
}

func TestParseAnonymous(t *testing.T) {
	regions, err := Parse(strings.NewReader("7f2c34000000-7f2c34021000 rw-p 00000000 00:00 0\n"))
	if err != nil || len(regions) != 1 {
		t.Fatalf("Parse: %v (%d regions)", err, len(regions))
	}
	if regions[0].Path != "" || regions[0].Kind() != "anonymous" {
		t.Errorf("anonymous mapping misclassified: %v", regions[0])
	}
}

func TestParsePathWithSpaces(t *testing.T) {
	regions, err := Parse(strings.NewReader("00400000-00452000 r-xp 00000000 08:01 123 /data/app/My App.apk\n"))
	if err != nil || len(regions) != 1 {
		t.Fatalf("Parse: %v", err)
	}
	if regions[0].Path != "/data/app/My App.apk" {
		t.Errorf("path = %q", regions[0].Path)
	}
}

func TestRegionFor(t *testing.T) {
	regions, err := Parse(strings.NewReader(sampleMaps))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if r := RegionFor(0x400000, regions); r == nil || r.Path != "/bin/app" {
		t.Errorf("RegionFor(0x400000) = %v", r)
	}
	if r := RegionFor(0x451fff, regions); r == nil {
		t.Errorf("last byte of region not found")
	}
	if r := RegionFor(0x452000, regions); r != nil {
		t.Errorf("end address is exclusive, got %v", r)
	}
	if Contains(0x10, regions) {
		t.Errorf("unmapped address reported as mapped")
	}
}
