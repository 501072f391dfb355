package render

import (
	"fmt"
	"strings"

	"github.com/park285/cheese-wargame/internal/domain"
)

// Text renders b as a fixed-width grid. Empty cells are ".", highlighted cells are
// wrapped in brackets.
//
//	    0  1  2
//	 0  K  . [P]
func Text(b domain.Board) string {
	if b.Rows <= 0 || b.Cols <= 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("   ")
	for c := 0; c < b.Cols; c++ {
		fmt.Fprintf(&sb, "%2d ", c)
	}
	sb.WriteByte('\n')
	for r := 0; r < b.Rows; r++ {
		fmt.Fprintf(&sb, "%2d ", r)
		for c := 0; c < b.Cols; c++ {
			label := b.At(r, c).Label
			if label == "" {
				label = "."
			}
			if len([]rune(label)) > 1 {
				label = string([]rune(label)[:1])
			}
			if b.Highlighted(domain.Coordinate{Row: r, Col: c}) {
				sb.WriteString("[" + label + "]")
				continue
			}
			sb.WriteString(" " + label + " ")
		}
		if r < b.Rows-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
