package display

import (
	"io"
	"strings"
)

// Writer prints each presented frame as text to an io.Writer. Useful when
// running without a panel attached.
type Writer struct {
	*Canvas
	w io.Writer
}

// NewWriter creates a text display writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{Canvas: NewPanelCanvas(), w: w}
}

// Present writes the frame followed by a separator line.
func (d *Writer) Present() error {
	frame := d.Canvas.String()
	sep := strings.Repeat("-", d.Bounds().Dx()) + "\n"
	_, err := io.WriteString(d.w, frame+sep)
	return err
}
