package display

import (
	"strings"

	"github.com/nerrad567/icu-core/internal/hal"
)

// Line is one positioned row of a multi-line message.
type Line struct {
	X, Y int
	Text string
}

// TextMeasurer reports the width of the screen and the extent of a text run.
type TextMeasurer interface {
	Width() int
	TextBounds(text string, size int) (w, h int)
}

// CenteredLines splits text on '\n' and centres each row horizontally,
// with the block as a whole centred on yCenter and a fixed gap between rows.
func CenteredLines(m TextMeasurer, text string, yCenter, size int) []Line {
	rows := strings.Split(text, "\n")
	_, h := m.TextBounds("A", size)

	total := h*len(rows) + lineGap*(len(rows)-1)
	top := yCenter - total/2

	out := make([]Line, 0, len(rows))
	for i, row := range rows {
		w, _ := m.TextBounds(row, size)
		out = append(out, Line{
			X:    (m.Width() - w) / 2,
			Y:    top + i*(h+lineGap),
			Text: row,
		})
	}
	return out
}

var _ TextMeasurer = hal.Screen(nil)
