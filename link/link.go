// Package link implements the OneTouch UltraEasy link-layer protocol:
// a framed, CRC-protected, sequence-numbered stop-and-wait link carried
// over a 9600 8N1 serial connection.
//
// It is the hard engineering of the driver. Everything above it (the
// meter package's version/serial/RTC/record queries) sees only two
// operations: Reset and Command.
package link

import (
	"fmt"
	"time"
)

// Wire format constants.
const (
	stx = 0x02
	etx = 0x03

	offsetSTX  = 0
	offsetLen  = 1
	offsetLink = 2
	offsetMsg  = 3

	lenMin = 6
	// MaxPayload is the largest payload a single frame can carry.
	MaxPayload = 34
	lenMax     = lenMin + MaxPayload

	linkBitS    = 0
	linkBitE    = 1
	linkBitAck  = 2
	linkBitDisc = 3
	linkBitMore = 4
	linkReservedMask = (1 << 5) | (1 << 6) | (1 << 7)
)

// Timing constants.
const (
	dataTimeout   = 10 * time.Millisecond
	layerTimeout  = 500 * time.Millisecond
	guardPeriod   = 100 * time.Millisecond
	usPerByte     = 1000 // microseconds of on-wire time budgeted per byte (about 1042 at 9600 8N1)
	resetAttempts = 4
	cmdAttempts   = 3
)

// bits is the LINK byte decomposed into its named fields. It mirrors
// link_meta_t from the original C driver.
type bits struct {
	s, e, ack, disc bool
}

func (b bits) encode() byte {
	var v byte
	if b.s {
		v |= 1 << linkBitS
	}
	if b.e {
		v |= 1 << linkBitE
	}
	if b.ack {
		v |= 1 << linkBitAck
	}
	if b.disc {
		v |= 1 << linkBitDisc
	}
	return v
}

func decodeBits(v byte) bits {
	return bits{
		s:    v&(1<<linkBitS) != 0,
		e:    v&(1<<linkBitE) != 0,
		ack:  v&(1<<linkBitAck) != 0,
		disc: v&(1<<linkBitDisc) != 0,
	}
}

// Port is the byte transport this package drives. It is satisfied by
// both a real serial device (package serial) and an in-memory
// simulator (package facade).
type Port interface {
	// WriteAll writes every byte of p, retrying on transient errors.
	WriteAll(p []byte) error

	// ReadByte waits up to timeout for a single byte.
	ReadByte(timeout time.Duration) (byte, error)

	// PollIdle suspends for timeout without reading.
	PollIdle(timeout time.Duration)

	// Drain discards any bytes currently available without blocking.
	Drain()

	Close() error
}

// Link is a single logical connection to a meter. It owns the
// transport, the shared frame buffer, and the E/S sequence bits. A
// Link must not be used from more than one goroutine at a time.
type Link struct {
	port Port

	buf        [lenMax]byte
	lastPacket time.Time

	e, s bool

	// now is a clock seam so tests can control guard-period and
	// wire-time bookkeeping without real sleeps.
	now func() time.Time

	trace Tracer
}

// Option configures a Link at construction time.
type Option func(*Link)

// WithTracer installs a diagnostic sink. A nil Tracer (the default)
// discards all trace output.
func WithTracer(t Tracer) Option {
	return func(l *Link) {
		if t == nil {
			t = nopTracer{}
		}
		l.trace = t
	}
}

// WithClock overrides the monotonic clock used for guard-period and
// wire-time bookkeeping. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Link) { l.now = now }
}

// Open establishes a link over port and performs the initial reset
// handshake required before any command can be issued.
func Open(port Port, opts ...Option) (*Link, error) {
	l := &Link{port: port, now: time.Now, trace: nopTracer{}}
	for _, o := range opts {
		o(l)
	}

	if err := l.Reset(); err != nil {
		port.Close()
		return nil, err
	}

	return l, nil
}

// Close releases the underlying transport. Close is idempotent.
func (l *Link) Close() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

// Reset performs the link-level reset handshake, retrying up to
// resetAttempts times. The first attempt does not drain stale bytes;
// subsequent attempts wait two guard periods and drain before retrying.
func (l *Link) Reset() error {
	for attempt := 0; attempt < resetAttempts; attempt++ {
		if attempt > 0 {
			l.port.PollIdle(2 * guardPeriod)
			l.port.Drain()
		}

		out, err := l.doReset()
		switch out {
		case outcomeOK:
			return nil
		case outcomeFatal:
			return err
		}

		l.trace.Tracef("recoverable error during reset (%v), retrying", err)
	}

	l.trace.Errorf("reset exhausted %d attempts", resetAttempts)
	return fmt.Errorf("%w: reset exhausted %d attempts", ErrLinkLost, resetAttempts)
}

// Command performs one request/reply transaction. It assumes the link
// has already been reset. On a recoverable failure it resets the link
// before retrying, up to cmdAttempts times.
func (l *Link) Command(request []byte) ([]byte, error) {
	if len(request) > MaxPayload {
		return nil, fmt.Errorf("%w: request is %d bytes, max %d", ErrProtocolViolation, len(request), MaxPayload)
	}

	for attempt := 0; attempt < cmdAttempts; attempt++ {
		reply, out, err := l.doCommand(request)
		switch out {
		case outcomeOK:
			return reply, nil
		case outcomeFatal:
			return nil, err
		}

		l.trace.Tracef("recoverable error during command (%v), retrying", err)
		if rerr := l.Reset(); rerr != nil {
			return nil, rerr
		}
	}

	l.trace.Errorf("command exhausted %d attempts", cmdAttempts)
	return nil, fmt.Errorf("%w: command exhausted %d attempts", ErrLinkLost, cmdAttempts)
}
