// Package creative extracts <creative>...</creative> highlight spans from model
// output and keeps their positions valid across whitespace trimming.
//
// All positions are counted in extended grapheme clusters so that they match the
// number of characters a user sees in the editor.
package creative

import (
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

const (
	OpenMarker  = "<creative>"
	CloseMarker = "</creative>"
)

// Range is a span of creative (model-assumed) text inside a cleaned string.
type Range struct {
	Location int `json:"location"`
	Length   int `json:"length"`
}

// End returns the exclusive end position of the range.
func (r Range) End() int {
	return r.Location + r.Length
}

// Len returns the number of user-visible characters in s.
func Len(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// Parse removes every marker pair from raw, keeping the marked content in place,
// and returns the cleaned text with one range per non-empty span.
//
// Markers do not nest: the first close marker after an open marker ends the span.
// An open marker without a matching close turns the rest of the input into a span.
func Parse(raw string) (string, []Range) {
	var (
		out    strings.Builder
		ranges []Range
	)
	out.Grow(len(raw))

	// Positions are measured on the output so far, since a grapheme cluster can
	// straddle a marker.
	mark := func(content string) {
		location := Len(out.String())
		out.WriteString(content)
		if length := Len(out.String()) - location; length > 0 {
			ranges = append(ranges, Range{Location: location, Length: length})
		}
	}

	rest := raw
	for {
		open := strings.Index(rest, OpenMarker)
		if open < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:open])

		rest = rest[open+len(OpenMarker):]
		end := strings.Index(rest, CloseMarker)
		if end < 0 {
			// Truncated output, keep what the model managed to send.
			mark(rest)
			break
		}
		mark(rest[:end])
		rest = rest[end+len(CloseMarker):]
	}

	return out.String(), ranges
}

// Trim strips leading and trailing whitespace from text and remaps ranges onto the
// trimmed string. Ranges that end up entirely inside the stripped whitespace are
// dropped; the rest are clamped to the trimmed bounds.
func Trim(text string, ranges []Range) (string, []Range) {
	left := strings.TrimLeftFunc(text, unicode.IsSpace)
	trimmed := strings.TrimRightFunc(left, unicode.IsSpace)
	if len(trimmed) == len(text) {
		return text, ranges
	}

	leading := Len(text[:len(text)-len(left)])
	size := Len(trimmed)

	var out []Range
	for _, r := range ranges {
		newEnd := r.End() - leading
		if newEnd <= 0 {
			continue
		}
		start := max(r.Location-leading, 0)
		newEnd = min(newEnd, size)
		if newEnd-start <= 0 {
			continue
		}
		out = append(out, Range{Location: start, Length: newEnd - start})
	}
	return trimmed, out
}

// Clean runs Parse followed by Trim.
func Clean(raw string) (string, []Range) {
	return Trim(Parse(raw))
}

// Strip removes markers and surrounding whitespace, discarding the ranges.
func Strip(raw string) string {
	text, _ := Clean(raw)
	return text
}

// Slice returns the substring of text covered by r, or false when r falls outside text.
func Slice(text string, r Range) (string, bool) {
	if r.Location < 0 || r.Length <= 0 {
		return "", false
	}

	start, end := -1, -1
	g := uniseg.NewGraphemes(text)
	for idx := 0; g.Next(); idx++ {
		from, to := g.Positions()
		if idx == r.Location {
			start = from
		}
		if idx == r.End()-1 {
			end = to
			break
		}
	}
	if start < 0 || end < 0 {
		return "", false
	}
	return text[start:end], true
}
