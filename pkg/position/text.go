package position

import (
	"strings"
	"unicode/utf16"
)

// SplitLines splits text on \n, \r\n and \r. An empty string yields one empty line.
func SplitLines(text string) []string {
	if strings.ContainsRune(text, '\r') {
		text = strings.ReplaceAll(text, "\r\n", "\n")
		text = strings.ReplaceAll(text, "\r", "\n")
	}
	return strings.Split(text, "\n")
}

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// CalcRange returns the range text occupies when inserted at start.
func CalcRange(start Place, text string) Range {
	lines := SplitLines(text)
	last := lines[len(lines)-1]
	if len(lines) == 1 {
		return Range{
			Start: start,
			End:   Place{Line: start.Line, Character: start.Character + UTF16Len(last)},
		}
	}
	return Range{
		Start: start,
		End:   Place{Line: start.Line + len(lines) - 1, Character: UTF16Len(last)},
	}
}

// ShiftRange moves r so that it begins at start, keeping its extent.
func ShiftRange(r Range, start Place) Range {
	if r.Start.Line == r.End.Line {
		return Range{
			Start: start,
			End:   Place{Line: start.Line, Character: start.Character + r.End.Character - r.Start.Character},
		}
	}
	return Range{
		Start: start,
		End:   Place{Line: start.Line + r.End.Line - r.Start.Line, Character: r.End.Character},
	}
}

// ByteToUTF16 converts a byte column within line into UTF-16 code units.
// Columns past the end of line are clamped.
func ByteToUTF16(line string, col int) int {
	if col > len(line) {
		col = len(line)
	}
	if col <= 0 {
		return 0
	}
	return UTF16Len(line[:col])
}

// UTF16ToByte converts a UTF-16 column within line into a byte column.
// A column that falls inside a surrogate pair rounds up to the end of the rune.
func UTF16ToByte(line string, col int) int {
	if col <= 0 {
		return 0
	}
	units := 0
	for i, r := range line {
		if units >= col {
			return i
		}
		units += utf16.RuneLen(r)
	}
	return len(line)
}

// SliceUTF16 returns line[from:to] where from and to are UTF-16 columns.
func SliceUTF16(line string, from, to int) string {
	if to < from {
		to = from
	}
	return line[UTF16ToByte(line, from):UTF16ToByte(line, to)]
}
