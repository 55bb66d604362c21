// Package hexdump renders byte buffers for terminal display.
package hexdump

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// HexDumpOptions defines options for customizing the hexdump output
type HexDumpOptions struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// GroupSize defines the grouping of bytes (usually 1, 2, 4, or 8)
	GroupSize int

	// ShowASCII determines whether to show the ASCII representation
	ShowASCII bool

	// ShowOffset determines whether to show the offset/address column
	ShowOffset bool

	// StartOffset is the starting offset for the hexdump
	StartOffset uint64

	// OffsetWidth is the width of the offset column in hex digits
	OffsetWidth int

	// Color toggles ANSI color output
	Color bool

	// OffsetColor is the color for the offset/address column
	OffsetColor coloransi.ColorCode

	// HexColor is the color for the hex values
	HexColor coloransi.ColorCode

	// ASCIIColor is the color for printable ASCII characters
	ASCIIColor coloransi.ColorCode

	// NonPrintableColor is the color for non-printable ASCII characters
	NonPrintableColor coloransi.ColorCode

	// ZeroColor is the color for zero bytes (0x00)
	ZeroColor coloransi.ColorCode
}

// DefaultOptions returns the default hexdump options
func DefaultOptions() HexDumpOptions {
	return HexDumpOptions{
		BytesPerLine:      16,
		GroupSize:         1,
		ShowASCII:         true,
		ShowOffset:        true,
		OffsetWidth:       12,
		Color:             true,
		OffsetColor:       coloransi.Cyan,
		HexColor:          coloransi.White,
		ASCIIColor:        coloransi.Green,
		NonPrintableColor: coloransi.BrightBlack,
		ZeroColor:         coloransi.BrightBlack,
	}
}

// Dump formats data according to options and returns the result as a string
func Dump(data []byte, options HexDumpOptions) string {
	var sb strings.Builder
	DumpToWriter(&sb, data, options)
	return sb.String()
}

// DumpWithOffset dumps with default options starting at startOffset, which
// is how the CLI labels process memory with its real addresses.
func DumpWithOffset(data []byte, startOffset uint64) string {
	options := DefaultOptions()
	options.StartOffset = startOffset
	return Dump(data, options)
}

// DumpPlain dumps without colors, for piping into other tools
func DumpPlain(data []byte, startOffset uint64) string {
	options := DefaultOptions()
	options.StartOffset = startOffset
	options.Color = false
	return Dump(data, options)
}

// DumpToWriter writes the formatted hexdump to a writer
func DumpToWriter(writer io.Writer, data []byte, options HexDumpOptions) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.GroupSize <= 0 {
		options.GroupSize = 1
	}

	for lineStart := 0; lineStart < len(data); lineStart += options.BytesPerLine {
		lineEnd := lineStart + options.BytesPerLine
		if lineEnd > len(data) {
			lineEnd = len(data)
		}
		formatLine(writer, data[lineStart:lineEnd], options.StartOffset+uint64(lineStart), options)
	}
}

func formatLine(writer io.Writer, line []byte, offset uint64, options HexDumpOptions) {
	if options.ShowOffset {
		text := fmt.Sprintf("%0*x  ", options.OffsetWidth, offset)
		if options.Color {
			text = coloransi.Foreground(options.OffsetColor, text)
		}
		io.WriteString(writer, text)
	}

	for i := 0; i < options.BytesPerLine; i++ {
		if i > 0 && i%options.GroupSize == 0 {
			io.WriteString(writer, " ")
		}
		if i >= len(line) {
			io.WriteString(writer, "  ")
			continue
		}
		io.WriteString(writer, hexByte(line[i], options))
	}

	if options.ShowASCII {
		io.WriteString(writer, "  |")
		for _, b := range line {
			io.WriteString(writer, asciiChar(b, options))
		}
		io.WriteString(writer, "|")
	}
	io.WriteString(writer, "\n")
}

func hexByte(b byte, options HexDumpOptions) string {
	text := fmt.Sprintf("%02x", b)
	if !options.Color {
		return text
	}
	if b == 0 {
		return coloransi.Foreground(options.ZeroColor, text)
	}
	return coloransi.Foreground(options.HexColor, text)
}

func asciiChar(b byte, options HexDumpOptions) string {
	if b >= 0x20 && b < 0x7f && unicode.IsPrint(rune(b)) {
		if options.Color {
			return coloransi.Foreground(options.ASCIIColor, string(b))
		}
		return string(b)
	}
	if options.Color {
		return coloransi.Foreground(options.NonPrintableColor, ".")
	}
	return "."
}
