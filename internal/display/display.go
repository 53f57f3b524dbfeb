// Package display draws render primitives onto a 1-bit canvas and pushes
// frames to an output device.
package display

import (
	"errors"

	"github.com/randomizedcoder/tether-oled/internal/render"
)

// Display is the collaborator that receives each frame.
type Display interface {
	// Clear blanks the back buffer.
	Clear() error

	// Draw renders primitives onto the back buffer.
	Draw(prims []render.Primitive) error

	// Present pushes the back buffer to the device.
	Present() error

	// Close releases the device.
	Close() error
}

// ErrClosed is returned when a closed display is used.
var ErrClosed = errors.New("display closed")

// Blank clears d and presents the empty frame.
func Blank(d Display) error {
	if err := d.Clear(); err != nil {
		return err
	}
	return d.Present()
}

// Frame clears d, draws prims and presents the result.
func Frame(d Display, prims []render.Primitive) error {
	if err := d.Clear(); err != nil {
		return err
	}
	if err := d.Draw(prims); err != nil {
		return err
	}
	return d.Present()
}

// Null discards every frame.
type Null struct{}

func (Null) Clear() error                  { return nil }
func (Null) Draw([]render.Primitive) error { return nil }
func (Null) Present() error                { return nil }
func (Null) Close() error                  { return nil }
