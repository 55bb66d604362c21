// Package parse validates address, size and payload literals before any
// backend is touched.
package parse

import (
	"encoding/hex"
	"fmt"
	"strings"

	"memgate/access"
)

// MaxTransfer bounds a single read or write. Larger requests would allocate
// runaway buffers locally and stall the broker remotely.
const MaxTransfer = 16 << 20

// Address parses a hex address literal with or without a "0x" prefix.
func Address(text string) (uint64, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if s == "" {
		return 0, fmt.Errorf("%w: empty literal", access.ErrInvalidAddress)
	}
	if len(s) > 16 {
		return 0, fmt.Errorf("%w: %q overflows 64 bits", access.ErrInvalidAddress, text)
	}

	var addr uint64
	for _, c := range []byte(s) {
		v, ok := hexDigit(c)
		if !ok {
			return 0, fmt.Errorf("%w: %q", access.ErrInvalidAddress, text)
		}
		addr = addr<<4 | uint64(v)
	}
	return addr, nil
}

// FormatAddress renders an address the way Address accepts it back.
func FormatAddress(addr uint64) string {
	return fmt.Sprintf("0x%x", addr)
}

// Size validates a transfer size against the safe maximum.
func Size(v int64) (uint32, error) {
	if v <= 0 || v > MaxTransfer {
		return 0, fmt.Errorf("%w: %d (allowed 1..%d)", access.ErrSizeOutOfRange, v, MaxTransfer)
	}
	return uint32(v), nil
}

// HexPayload decodes a hex payload literal. Even length and valid digits are
// required; the decoded payload is bounded like any other transfer.
func HexPayload(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if s == "" || len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: hex payload must have even length", access.ErrMalformedPayload)
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", access.ErrMalformedPayload, err)
	}
	if len(data) > MaxTransfer {
		return nil, fmt.Errorf("%w: payload of %d bytes", access.ErrSizeOutOfRange, len(data))
	}
	return data, nil
}

// CheckRange rejects ranges whose end would overflow the address space.
func CheckRange(addr uint64, size uint32) error {
	if size == 0 || uint64(size) > MaxTransfer {
		return fmt.Errorf("%w: %d", access.ErrSizeOutOfRange, size)
	}
	if addr > ^uint64(0)-uint64(size) {
		return fmt.Errorf("%w: %s+%d overflows", access.ErrSizeOutOfRange, FormatAddress(addr), size)
	}
	return nil
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
