package display

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

const (
	// DefaultI2CBus is the Raspberry Pi's user I2C bus.
	DefaultI2CBus = "/dev/i2c-1"

	// DefaultI2CAddr is the usual SSD1306 address.
	DefaultI2CAddr = 0x3C

	// i2cSlave is the I2C_SLAVE ioctl request from linux/i2c-dev.h.
	i2cSlave = 0x0703

	controlCommand = 0x00
	controlData    = 0x40

	// dataChunk keeps each write within small I2C adapter buffers.
	dataChunk = 32
)

// I2CDevice is an open /dev/i2c-N handle bound to one slave address.
type I2CDevice struct {
	fd int
}

// OpenI2C opens bus and selects addr.
func OpenI2C(bus string, addr int) (*I2CDevice, error) {
	fd, err := unix.Open(bus, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", bus, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("select i2c address 0x%02x: %w", addr, err)
	}
	return &I2CDevice{fd: fd}, nil
}

// Write sends one I2C transaction.
func (d *I2CDevice) Write(p []byte) (int, error) {
	return unix.Write(d.fd, p)
}

// Close releases the file descriptor.
func (d *I2CDevice) Close() error {
	return unix.Close(d.fd)
}

// SSD1306 drives a 128x32 monochrome OLED over I2C.
type SSD1306 struct {
	*Canvas
	bus    io.WriteCloser
	closed bool
}

// NewSSD1306 initializes the controller on bus and blanks the panel.
func NewSSD1306(bus io.WriteCloser) (*SSD1306, error) {
	d := &SSD1306{Canvas: NewPanelCanvas(), bus: bus}
	if err := d.init(); err != nil {
		return nil, err
	}
	if err := Blank(d); err != nil {
		return nil, err
	}
	return d, nil
}

// OpenSSD1306 opens the I2C bus and returns an initialized panel.
func OpenSSD1306(bus string, addr int) (*SSD1306, error) {
	dev, err := OpenI2C(bus, addr)
	if err != nil {
		return nil, err
	}
	d, err := NewSSD1306(dev)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("init ssd1306: %w", err)
	}
	return d, nil
}

func (d *SSD1306) init() error {
	h := d.Bounds().Dy()
	comPins := byte(0x02)
	if h > 32 {
		comPins = 0x12
	}
	return d.command(
		0xAE,            // display off
		0xD5, 0x80,      // clock divide
		0xA8, byte(h-1), // multiplex ratio
		0xD3, 0x00,      // display offset
		0x40,            // start line 0
		0x8D, 0x14,      // charge pump on
		0x20, 0x00,      // horizontal addressing
		0xA1,            // segment remap
		0xC8,            // COM scan descending
		0xDA, comPins,   // COM pins
		0x81, 0x8F,      // contrast
		0xD9, 0xF1,      // precharge
		0xDB, 0x40,      // VCOMH deselect
		0xA4,            // resume from RAM
		0xA6,            // normal, not inverted
		0xAF,            // display on
	)
}

func (d *SSD1306) command(cmds ...byte) error {
	buf := make([]byte, 0, len(cmds)+1)
	buf = append(buf, controlCommand)
	buf = append(buf, cmds...)
	if _, err := d.bus.Write(buf); err != nil {
		return fmt.Errorf("ssd1306 command: %w", err)
	}
	return nil
}

// Present writes the canvas to display RAM.
func (d *SSD1306) Present() error {
	if d.closed {
		return ErrClosed
	}
	b := d.Bounds()
	pages := (b.Dy() + 7) / 8
	if err := d.command(0x21, 0, byte(b.Dx()-1), 0x22, 0, byte(pages-1)); err != nil {
		return err
	}

	data := d.Pages()
	chunk := make([]byte, 0, dataChunk+1)
	for off := 0; off < len(data); off += dataChunk {
		end := min(off+dataChunk, len(data))
		chunk = append(chunk[:0], controlData)
		chunk = append(chunk, data[off:end]...)
		if _, err := d.bus.Write(chunk); err != nil {
			return fmt.Errorf("ssd1306 data: %w", err)
		}
	}
	return nil
}

// Close turns the panel off and releases the bus.
func (d *SSD1306) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	cmdErr := d.command(0xAE)
	if err := d.bus.Close(); err != nil {
		return err
	}
	return cmdErr
}
