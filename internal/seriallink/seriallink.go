// Package seriallink provides the byte-level link to a capture peripheral
// attached over a serial port. A Link exposes exactly what the capture
// session needs: a blocking byte stream, a DTR line for the reset pulse, and
// a way to drop bytes buffered before the reset.
package seriallink

import (
	"io"

	"go.bug.st/serial"
)

// DefaultBaudRate is used when a device section does not specify one.
const DefaultBaudRate = 115200

// Link is the minimal interface the capture session needs from a serial
// connection. This abstraction enables unit testing without real hardware.
type Link interface {
	io.Reader
	io.Closer

	// SetDTR drives the Data Terminal Ready line. The capture peripheral
	// wires DTR to its reset pin, so pulsing it reboots the firmware.
	SetDTR(bool) error

	// ResetInputBuffer discards bytes already buffered by the driver.
	ResetInputBuffer() error
}

// Open opens a serial link at the given path and baud rate with the 8N1
// framing the capture firmware uses.
func Open(path string, baud int) (Link, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(path, mode)
}
