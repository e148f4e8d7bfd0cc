package grammar

import (
	"fmt"
	"unicode/utf8"

	"github.com/walteh/gosnippet/pkg/position"
)

// ParseError reports where a snippet body stopped matching the grammar.
type ParseError struct {
	Offset int
	Line   int
	Column int
	// Range covers the rune the parser stopped at, empty at the end of the
	// body.
	Range   position.Range
	Message string
	err     error
}

func newParseError(text string, offset int, msg string, cause error) *ParseError {
	at := position.NewRawPosition(nextRune(text, offset), offset)
	line, col := at.LineColumn(text)
	return &ParseError{Offset: offset, Line: line, Column: col, Range: at.Range(text), Message: msg, err: cause}
}

func nextRune(text string, offset int) string {
	if offset < 0 || offset >= len(text) {
		return ""
	}
	_, size := utf8.DecodeRuneInString(text[offset:])
	return text[offset : offset+size]
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing snippet at %d:%d: %s", e.Line+1, e.Column+1, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.err
}
