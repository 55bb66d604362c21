package parse

import (
	"bytes"
	"errors"
	"testing"

	"memgate/access"
)

func TestAddressRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"0", 0},
		{"0x0", 0},
		{"400000", 0x400000},
		{"0x400000", 0x400000},
		{"0X7fff5fbff000", 0x7fff5fbff000},
		{"DEADBEEF", 0xdeadbeef},
		{"ffffffffffffffff", ^uint64(0)},
		{"  0x10  ", 0x10},
	}
	for _, tc := range cases {
		got, err := Address(tc.in)
		if err != nil {
			t.Errorf("Address(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Address(%q) = %#x, want %#x", tc.in, got, tc.want)
		}

		// Re-encoding and reparsing yields the same numeric value.
		again, err := Address(FormatAddress(got))
		if err != nil || again != got {
			t.Errorf("round trip of %q: got %#x, %v", tc.in, again, err)
		}
	}
}

func TestAddressInvalid(t *testing.T) {
	for _, in := range []string{"", "0x", "xyz", "0x12g4", "12 34", "0x10000000000000000", "-4"} {
		if _, err := Address(in); !errors.Is(err, access.ErrInvalidAddress) {
			t.Errorf("Address(%q): want ErrInvalidAddress, got %v", in, err)
		}
	}
}

func TestSizeBounds(t *testing.T) {
	if _, err := Size(0); !errors.Is(err, access.ErrSizeOutOfRange) {
		t.Errorf("Size(0): want ErrSizeOutOfRange, got %v", err)
	}
	if _, err := Size(-8); !errors.Is(err, access.ErrSizeOutOfRange) {
		t.Errorf("Size(-8): want ErrSizeOutOfRange, got %v", err)
	}
	if _, err := Size(MaxTransfer + 1); !errors.Is(err, access.ErrSizeOutOfRange) {
		t.Errorf("Size(max+1): want ErrSizeOutOfRange, got %v", err)
	}
	if got, err := Size(MaxTransfer); err != nil || got != MaxTransfer {
		t.Errorf("Size(max) = %d, %v", got, err)
	}
}

func TestHexPayload(t *testing.T) {
	got, err := HexPayload("deadBEEF")
	if err != nil {
		t.Fatalf("HexPayload: %v", err)
	}
	if !bytes.Equal(got, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("HexPayload = %x", got)
	}

	for _, in := range []string{"", "abc", "zz", "0x1"} {
		if _, err := HexPayload(in); !errors.Is(err, access.ErrMalformedPayload) {
			t.Errorf("HexPayload(%q): want ErrMalformedPayload, got %v", in, err)
		}
	}
}

func TestCheckRangeOverflow(t *testing.T) {
	if err := CheckRange(^uint64(0)-3, 8); !errors.Is(err, access.ErrSizeOutOfRange) {
		t.Errorf("overflowing range: want ErrSizeOutOfRange, got %v", err)
	}
	if err := CheckRange(0x400000, 4096); err != nil {
		t.Errorf("valid range: %v", err)
	}
}
