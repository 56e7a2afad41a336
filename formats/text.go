package formats

import (
	"fmt"
	"io"
	"strings"
)

// Text writes human readable output:
//
//	decks _id=12
//	  revisions.0.contentItems.0.ref.id: 6 -> 106
var Text = &OutputFormat{
	Name: "text",
	Preview: func(w io.Writer, p Preview) error {
		var b strings.Builder
		fmt.Fprintf(&b, "%s _id=%s\n", p.Collection, formatValue(p.ID))
		for _, s := range p.Patch {
			fmt.Fprintf(&b, "  %s: %s -> %s\n", s.Path, formatValue(s.Old), formatValue(s.Value))
		}
		_, err := io.WriteString(w, b.String())
		return err
	},
	Summary: func(w io.Writer, s Summary) error {
		var b strings.Builder
		b.WriteString(s.Title)
		b.WriteString("\n")

		width := 0
		for _, r := range s.Rows {
			if len(r.Label) > width {
				width = len(r.Label)
			}
		}
		for _, r := range s.Rows {
			fmt.Fprintf(&b, "  %-*s  %s\n", width+1, r.Label+":", formatValue(r.Value))
		}
		_, err := io.WriteString(w, b.String())
		return err
	},
}

// formatValue quotes strings so composite identifiers stand out from numbers
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "<none>"
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
