// Package richtext holds editor text with creative-highlight styling.
package richtext

import (
	"html"
	"strings"

	"github.com/fatih/color"
	"github.com/rivo/uniseg"

	"github.com/mcdickies/savor/internal/creative"
)

// Text is plain text plus the spans rendered with a highlight background.
type Text struct {
	Text       string           `json:"text"`
	Highlights []creative.Range `json:"highlights,omitempty"`
}

// Span is a run of text that is either entirely highlighted or entirely plain.
type Span struct {
	Text        string
	Highlighted bool
}

// Plain wraps s without any highlighting.
func Plain(s string) Text {
	return Text{Text: s}
}

// New builds a Text and applies every range that fits inside s.
func New(s string, ranges []creative.Range) Text {
	t := Plain(s)
	for _, r := range ranges {
		t.Highlight(r)
	}
	return t
}

// Highlight marks r for emphasis. Ranges outside the text are ignored and
// reported as false.
func (t *Text) Highlight(r creative.Range) bool {
	if r.Location < 0 || r.Length <= 0 || r.End() > creative.Len(t.Text) {
		return false
	}
	t.Highlights = append(t.Highlights, r)
	return true
}

// IsEmpty reports whether the text is blank.
func (t Text) IsEmpty() bool {
	return strings.TrimSpace(t.Text) == ""
}

// Spans splits the text into alternating plain and highlighted runs.
func (t Text) Spans() []Span {
	if t.Text == "" {
		return nil
	}

	marked := make(map[int]bool)
	for _, r := range t.Highlights {
		for i := r.Location; i < r.End(); i++ {
			marked[i] = true
		}
	}

	var (
		spans []Span
		cur   strings.Builder
		state bool
	)
	g := uniseg.NewGraphemes(t.Text)
	for idx := 0; g.Next(); idx++ {
		hl := marked[idx]
		if idx > 0 && hl != state {
			spans = append(spans, Span{Text: cur.String(), Highlighted: state})
			cur.Reset()
		}
		state = hl
		cur.WriteString(g.Str())
	}
	spans = append(spans, Span{Text: cur.String(), Highlighted: state})
	return spans
}

// RenderANSI renders highlighted runs with a terminal background colour.
func (t Text) RenderANSI() string {
	hl := color.New(color.BgYellow, color.FgBlack)

	var b strings.Builder
	for _, s := range t.Spans() {
		if s.Highlighted {
			b.WriteString(hl.Sprint(s.Text))
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// RenderHTML escapes the text and wraps highlighted runs in <i> tags, the subset
// understood by chat clients such as Telegram.
func (t Text) RenderHTML() string {
	var b strings.Builder
	for _, s := range t.Spans() {
		if s.Highlighted {
			b.WriteString("<i>")
			b.WriteString(html.EscapeString(s.Text))
			b.WriteString("</i>")
			continue
		}
		b.WriteString(html.EscapeString(s.Text))
	}
	return b.String()
}
