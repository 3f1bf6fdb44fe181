package domain

import "strings"

const (
	fullWidthFirst = '\uFF01'
	fullWidthLast  = '\uFF5E'
	fullWidthShift = 0xFEE0
)

// ToHalfWidth maps full-width ASCII variants (U+FF01–U+FF5E) to their
// half-width forms. Every other rune, including the ideographic space, is
// left untouched.
func ToHalfWidth(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= fullWidthFirst && r <= fullWidthLast {
			return r - fullWidthShift
		}
		return r
	}, s)
}
