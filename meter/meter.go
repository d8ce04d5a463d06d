// Package meter implements the command/application layer on top of
// package link: the per-query request payloads and reply decoding for
// firmware version, serial number, real-time clock, record count, and
// individual record retrieval.
//
// This layer sits outside the core link-layer specification — the
// core treats every payload here as opaque bytes — but a usable driver
// needs it, so it is built here grounded on original_source/src/
// onetouch.c and ultraeasy.h.
package meter

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Tracer is the diagnostic sink a Conn reports to. link.Tracer and
// link.SlogTracer both satisfy it; a Conn built on a link.Link
// typically shares the same tracer the link itself was opened with.
type Tracer interface {
	Errorf(format string, args ...any)
	Tracef(format string, args ...any)
	Debugf(format string, args ...any)
}

type nopTracer struct{}

func (nopTracer) Errorf(string, ...any) {}
func (nopTracer) Tracef(string, ...any) {}
func (nopTracer) Debugf(string, ...any) {}

// Conn wraps a reset link and exposes the meter's high-level queries.
// Conn does not implement retry or framing itself; every query is a
// single link.Command call.
type Conn struct {
	cmd   func(request []byte) ([]byte, error)
	trace Tracer
}

// Option configures a Conn at construction time.
type Option func(*Conn)

// WithTracer installs a diagnostic sink. A nil Tracer (the default)
// discards all trace output.
func WithTracer(t Tracer) Option {
	return func(c *Conn) {
		if t == nil {
			t = nopTracer{}
		}
		c.trace = t
	}
}

// New wraps cmd (typically (*link.Link).Command) as a Conn.
func New(cmd func(request []byte) ([]byte, error), opts ...Option) *Conn {
	c := &Conn{cmd: cmd, trace: nopTracer{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

var (
	versionRequest = []byte{0x05, 0x0d, 0x02}
	versionTag     = []byte{0x05, 0x06, 0x11}

	// serialRequest carries the fixed non-zero token 84 6a e8 73 in
	// the middle of the payload. The original source alternates
	// between this and an all-zero token via a compile-time switch;
	// this driver keeps the non-zero token, which is what real meters
	// in the field have been observed to require.
	serialRequest = []byte{0x05, 0x0b, 0x02, 0x00, 0x00, 0x00, 0x00, 0x84, 0x6a, 0xe8, 0x73, 0x00}
	serialTag     = []byte{0x05, 0x06}

	// countRequest uses the request-by-index wire form (05 1f 00 02)
	// rather than the 05 1f f5 01 variant that also appears in the
	// original driver's history.
	countRequest = []byte{0x05, 0x1f, 0x00, 0x02}
	countTag     = []byte{0x05, 0x1f}

	rtcRequest = []byte{0x05, 0x20, 0x02}
	rtcTag     = []byte{0x05, 0x06}
)

// meterEpoch is the reference instant the meter's raw clock counts
// from. Lifescan meters of this era commonly epoch at 2000-01-01 UTC
// rather than the Unix epoch; this driver follows that convention.
var meterEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// ReadVersion returns the meter's firmware version string.
func (c *Conn) ReadVersion() (string, error) {
	c.trace.Tracef("reading firmware version")
	reply, err := c.cmd(versionRequest)
	if err != nil {
		return "", err
	}
	return c.decodeTaggedString(reply, versionTag)
}

// ReadSerial returns the meter's serial number string.
func (c *Conn) ReadSerial() (string, error) {
	c.trace.Tracef("reading serial number")
	reply, err := c.cmd(serialRequest)
	if err != nil {
		return "", err
	}
	return c.decodeTaggedString(reply, serialTag)
}

// ReadRTC returns the meter's real-time clock.
func (c *Conn) ReadRTC() (time.Time, error) {
	c.trace.Tracef("reading real-time clock")
	reply, err := c.cmd(rtcRequest)
	if err != nil {
		return time.Time{}, err
	}
	body, err := c.trimTag(reply, rtcTag)
	if err != nil {
		return time.Time{}, err
	}
	if len(body) < 4 {
		err := fmt.Errorf("meter: short RTC reply (%d bytes)", len(body))
		c.trace.Errorf("%v", err)
		return time.Time{}, err
	}
	seconds := binary.LittleEndian.Uint32(body[:4])
	return meterEpoch.Add(time.Duration(seconds) * time.Second), nil
}

// NumRecords returns the number of glucose readings stored on the
// meter.
func (c *Conn) NumRecords() (int, error) {
	c.trace.Tracef("reading record count")
	reply, err := c.cmd(countRequest)
	if err != nil {
		return 0, err
	}
	body, err := c.trimTag(reply, countTag)
	if err != nil {
		return 0, err
	}
	if len(body) < 2 {
		err := fmt.Errorf("meter: short record-count reply (%d bytes)", len(body))
		c.trace.Errorf("%v", err)
		return 0, err
	}
	return int(binary.LittleEndian.Uint16(body[:2])), nil
}

// Record is one stored glucose reading.
type Record struct {
	Date         time.Time
	MmolPerLitre float64

	RawDate    uint32
	RawReading uint32
}

// Record retrieves the reading at the given zero-based index.
func (c *Conn) Record(index int) (Record, error) {
	c.trace.Tracef("reading record %d", index)
	req := append(append([]byte{}, countTag...), byte(index), byte(index>>8))
	reply, err := c.cmd(req)
	if err != nil {
		return Record{}, err
	}
	body, err := c.trimTag(reply, countTag)
	if err != nil {
		return Record{}, err
	}
	if len(body) < 8 {
		err := fmt.Errorf("meter: short record reply (%d bytes)", len(body))
		c.trace.Errorf("%v", err)
		return Record{}, err
	}

	rawDate := binary.LittleEndian.Uint32(body[0:4])
	rawReading := binary.LittleEndian.Uint32(body[4:8])

	return Record{
		Date:         meterEpoch.Add(time.Duration(rawDate) * time.Second),
		MmolPerLitre: float64(rawReading) / 180.0,
		RawDate:      rawDate,
		RawReading:   rawReading,
	}, nil
}

func (c *Conn) trimTag(reply, tag []byte) ([]byte, error) {
	c.trace.Debugf("reply: % x", reply)
	if !bytes.HasPrefix(reply, tag) {
		err := fmt.Errorf("meter: unexpected reply tag % x", reply)
		c.trace.Errorf("%v", err)
		return nil, err
	}
	return reply[len(tag):], nil
}

func (c *Conn) decodeTaggedString(reply, tag []byte) (string, error) {
	body, err := c.trimTag(reply, tag)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
