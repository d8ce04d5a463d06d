// Package serial provides the real byte transport for the link
// package: a blocking, pollable RS-232 device configured for the
// meter's fixed 9600 8N1 wire parameters.
package serial

import (
	"fmt"
	"time"

	tarmserial "github.com/tarm/serial"
)

// pollQuantum bounds how long a single underlying read blocks before
// ReadByte re-checks the requested timeout. tarm/serial exposes only a
// single, port-wide ReadTimeout, so byte-granularity timeouts (the
// 500ms layer timeout, the 10ms data timeout) are implemented by
// polling in quanta no larger than this.
const pollQuantum = 5 * time.Millisecond

// Device is a real serial device, configured raw: 9600 baud both
// directions, 8 data bits, no parity, 1 stop bit, no flow control,
// receiver enabled, local line.
type Device struct {
	port *tarmserial.Port
}

// Open opens path as a 9600 8N1 serial device.
func Open(path string) (*Device, error) {
	cfg := &tarmserial.Config{
		Name:        path,
		Baud:        9600,
		Size:        8,
		Parity:      tarmserial.ParityNone,
		StopBits:    tarmserial.Stop1,
		ReadTimeout: pollQuantum,
	}

	port, err := tarmserial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", path, err)
	}

	return &Device{port: port}, nil
}

// WriteAll writes every byte of p, retrying until the whole buffer is
// accepted by the driver.
func (d *Device) WriteAll(p []byte) error {
	for len(p) > 0 {
		n, err := d.port.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// ReadByte waits up to timeout for a single byte, distinguishing a
// timeout from an I/O error as link.Port requires.
func (d *Device) ReadByte(timeout time.Duration) (byte, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 1)

	for {
		n, err := d.port.Read(buf)
		if n == 1 {
			return buf[0], nil
		}
		if err != nil {
			return 0, err
		}
		// n == 0, err == nil: the port's own ReadTimeout elapsed
		// with nothing available. Keep polling until our caller's
		// timeout is exhausted.
		if time.Now().After(deadline) {
			return 0, errTimeout
		}
	}
}

// PollIdle suspends for timeout without reading.
func (d *Device) PollIdle(timeout time.Duration) {
	time.Sleep(timeout)
}

// Drain discards any bytes currently buffered without blocking.
func (d *Device) Drain() {
	buf := make([]byte, 64)
	for {
		n, err := d.port.Read(buf)
		if err != nil || n == 0 {
			return
		}
	}
}

// Close releases the underlying file descriptor.
func (d *Device) Close() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

var errTimeout = fmt.Errorf("serial: read timed out")
