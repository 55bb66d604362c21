// Package scan matches byte patterns with wildcard positions against
// memory buffers.
package scan

import (
	"fmt"
	"strings"

	"memgate/access"
)

// Pattern is a byte sequence to look for. Mask has the same length; 0xFF
// positions must match exactly and 0x00 positions match anything.
type Pattern struct {
	Bytes []byte
	Mask  []byte
}

func (p Pattern) Len() int { return len(p.Bytes) }

func (p Pattern) String() string {
	var sb strings.Builder
	for i, v := range p.Bytes {
		if i > 0 {
			sb.WriteByte(',')
		}
		if p.Mask[i] == 0 {
			sb.WriteString("??")
		} else {
			fmt.Fprintf(&sb, "%02x", v)
		}
	}
	return sb.String()
}

// Parse reads a pattern literal of comma- or space-separated tokens, each a
// hex byte or the wildcard "??", e.g. "de,ad,??,ef".
func Parse(text string) (Pattern, error) {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(tokens) == 0 {
		return Pattern{}, fmt.Errorf("%w: empty pattern", access.ErrMalformedPayload)
	}

	p := Pattern{
		Bytes: make([]byte, 0, len(tokens)),
		Mask:  make([]byte, 0, len(tokens)),
	}
	for _, tok := range tokens {
		if tok == "??" {
			p.Bytes = append(p.Bytes, 0)
			p.Mask = append(p.Mask, 0)
			continue
		}
		if len(tok) != 2 {
			return Pattern{}, fmt.Errorf("%w: token %q", access.ErrMalformedPayload, tok)
		}
		var v byte
		if _, err := fmt.Sscanf(tok, "%02x", &v); err != nil {
			return Pattern{}, fmt.Errorf("%w: token %q", access.ErrMalformedPayload, tok)
		}
		p.Bytes = append(p.Bytes, v)
		p.Mask = append(p.Mask, 0xFF)
	}
	return p, nil
}

// Exact builds a pattern that matches data byte for byte.
func Exact(data []byte) Pattern {
	mask := make([]byte, len(data))
	for i := range mask {
		mask[i] = 0xFF
	}
	return Pattern{Bytes: data, Mask: mask}
}

// Find returns every offset in data where the pattern matches.
func (p Pattern) Find(data []byte) []int {
	if p.Len() == 0 || len(data) < p.Len() {
		return nil
	}

	var offsets []int
	limit := len(data) - p.Len()
	for i := 0; i <= limit; i++ {
		if p.matchAt(data, i) {
			offsets = append(offsets, i)
		}
	}
	return offsets
}

func (p Pattern) matchAt(data []byte, at int) bool {
	for j := range p.Bytes {
		if data[at+j]&p.Mask[j] != p.Bytes[j]&p.Mask[j] {
			return false
		}
	}
	return true
}
