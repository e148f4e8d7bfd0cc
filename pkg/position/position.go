package position

import (
	"fmt"
)

// Place is a zero-based buffer location. Character is counted in UTF-16 code units.
type Place struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is end-exclusive.
type Range struct {
	Start Place `json:"start"`
	End   Place `json:"end"`
}

func NewRange(startLine, startChar, endLine, endChar int) Range {
	return Range{
		Start: Place{Line: startLine, Character: startChar},
		End:   Place{Line: endLine, Character: endChar},
	}
}

func (p Place) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Compare returns -1, 0 or 1 ordering p against o lexicographically.
func (p Place) Compare(o Place) int {
	switch {
	case p.Line < o.Line:
		return -1
	case p.Line > o.Line:
		return 1
	case p.Character < o.Character:
		return -1
	case p.Character > o.Character:
		return 1
	}
	return 0
}

func (p Place) Before(o Place) bool {
	return p.Compare(o) < 0
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Start, r.End)
}

func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

// IsValid reports whether start <= end and no coordinate is negative.
func (r Range) IsValid() bool {
	if r.Start.Line < 0 || r.Start.Character < 0 || r.End.Line < 0 || r.End.Character < 0 {
		return false
	}
	return r.Start.Compare(r.End) <= 0
}

// Contains reports whether p lies inside r, both ends inclusive.
func (r Range) Contains(p Place) bool {
	return r.Start.Compare(p) <= 0 && p.Compare(r.End) <= 0
}
