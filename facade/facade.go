// Package facade is an in-memory stand-in for a real meter, used to
// drive the link package deterministically in tests and demos without
// a serial device attached.
//
// Outbound frames are matched byte-for-byte, LINK byte included, so a
// request only matches when it carries the E/S sequence bits it was
// scripted with. Replies are replayed exactly as scripted; the facade
// does not track or rewrite sequence bits itself.
package facade

import (
	"errors"
	"time"
)

// ErrNoReply is returned when the next outbound frame does not match
// any scripted exchange, or the script is exhausted.
var ErrNoReply = errors.New("facade: no packet available")

// exchange is one scripted request/replies tuple: when Request is
// written to the facade, Replies are returned in order on successive
// reads.
type exchange struct {
	Request []byte
	Replies [][]byte
}

// Facade implements link.Port by matching outbound frames against a
// table of scripted exchanges.
type Facade struct {
	table   []exchange
	pending [][]byte
}

// New creates a Facade with no scripted exchanges; add them with
// Script. A facade with no exchanges always reports ErrNoReply, useful
// for exercising the retry/timeout paths.
func New() *Facade {
	return &Facade{}
}

// Script registers a request/replies exchange. request must match an
// outbound frame byte-for-byte (the full wire frame, including STX,
// LEN, LINK, ETX and CRC) for replies to be queued.
func (f *Facade) Script(request []byte, replies ...[]byte) *Facade {
	f.table = append(f.table, exchange{Request: append([]byte(nil), request...), Replies: replies})
	return f
}

// WriteAll matches p against the script and queues the corresponding
// replies for subsequent ReadByte calls. An unrecognized frame clears
// the pending queue, so the next read fails with ErrNoReply.
func (f *Facade) WriteAll(p []byte) error {
	f.pending = nil
	for _, e := range f.table {
		if len(e.Request) == len(p) && string(e.Request) == string(p) {
			f.pending = append(f.pending, e.Replies...)
			return nil
		}
	}
	return nil
}

// ReadByte pops one byte from the head of the next queued reply. When
// no reply is queued it returns ErrNoReply regardless of timeout,
// since the facade has nothing further to say.
func (f *Facade) ReadByte(timeout time.Duration) (byte, error) {
	for len(f.pending) > 0 && len(f.pending[0]) == 0 {
		f.pending = f.pending[1:]
	}
	if len(f.pending) == 0 {
		return 0, ErrNoReply
	}
	b := f.pending[0][0]
	f.pending[0] = f.pending[0][1:]
	return b, nil
}

// PollIdle is a no-op: the facade has no guard-period constraints of
// its own to honor, only the ones link.Link enforces on the caller.
func (f *Facade) PollIdle(time.Duration) {}

// Drain discards any queued replies.
func (f *Facade) Drain() { f.pending = nil }

// Close is a no-op.
func (f *Facade) Close() error { return nil }
