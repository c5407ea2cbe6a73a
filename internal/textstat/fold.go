package textstat

import (
	"strings"

	"golang.org/x/text/cases"
)

// FoldTag returns the canonical form of a keyword tag: Unicode case folded
// and trimmed. Tags are equal when their folded forms are.
func FoldTag(tag string) string {
	return strings.TrimSpace(cases.Fold().String(tag))
}
