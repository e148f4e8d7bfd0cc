package position

// RawPosition is a span of source text located by its byte offset.
type RawPosition struct {
	Offset int
	Text   string
}

func NewRawPosition(text string, offset int) RawPosition {
	return RawPosition{Text: text, Offset: offset}
}

// End is the byte offset just past the span.
func (p RawPosition) End() int {
	return p.Offset + len(p.Text)
}

// LineColumn returns the zero-based line of the span's start in src and its
// column in UTF-16 units. Offsets outside src are clamped.
func (p RawPosition) LineColumn(src string) (line, col int) {
	return locate(src, p.Offset)
}

// Range is the span within src, assuming src starts at Place{0, 0}.
func (p RawPosition) Range(src string) Range {
	sl, sc := locate(src, p.Offset)
	el, ec := locate(src, p.End())
	return NewRange(sl, sc, el, ec)
}

func locate(src string, offset int) (line, col int) {
	offset = min(max(offset, 0), len(src))
	lineStart := 0
	for i := 0; i < offset; i++ {
		if src[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	return line, UTF16Len(src[lineStart:offset])
}
