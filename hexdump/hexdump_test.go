package hexdump

import (
	"strings"
	"testing"
)

func TestDumpPlainLayout(t *testing.T) {
	data := []byte("Hello\x00World!....abc")
	out := DumpPlain(data, 0x7f0000400000)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "7f0000400000  ") {
		t.Errorf("offset column missing: %q", lines[0])
	}
	if !strings.Contains(lines[0], "|Hello.World!....|") {
		t.Errorf("ascii column wrong: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "7f0000400010  ") {
		t.Errorf("second line offset wrong: %q", lines[1])
	}
	if !strings.Contains(lines[1], "|abc|") {
		t.Errorf("short tail ascii wrong: %q", lines[1])
	}
}

func TestDumpPlainHasNoEscapes(t *testing.T) {
	out := DumpPlain([]byte{0x00, 0xff, 0x41}, 0)
	if strings.Contains(out, "\x1b[") {
		t.Errorf("plain dump contains ANSI escapes: %q", out)
	}
	if !strings.Contains(out, "00 ff 41") {
		t.Errorf("hex bytes missing: %q", out)
	}
}

func TestDumpColorKeepsBytes(t *testing.T) {
	out := DumpWithOffset([]byte{0xde, 0xad}, 0x1000)
	if !strings.Contains(out, "de") || !strings.Contains(out, "ad") {
		t.Errorf("hex bytes missing from colored dump: %q", out)
	}
}
