package link

import (
	"fmt"
	"time"
)

// txFrame transmits p, honoring the inter-frame guard period before
// writing and recording an optimistic last-packet time afterwards.
//
// The kernel may buffer bytes the device has not yet clocked out, so
// the bookkeeping timestamp is now plus the estimated on-wire duration
// of the frame rather than now itself. That estimate can legitimately
// land in the future; the guard-period check below uses a signed delta
// to cope with that.
func (l *Link) txFrame(p []byte) error {
	for {
		delta := l.now().Sub(l.lastPacket)
		if delta >= guardPeriod {
			break
		}
		l.port.PollIdle(guardPeriod - delta)
	}

	l.trace.Debugf("tx: % x", p)

	if err := l.port.WriteAll(p); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	wireTime := time.Duration((len(p)*usPerByte+999)/1000) * time.Millisecond
	l.lastPacket = l.now().Add(wireTime)
	return nil
}

// rxFrame reads one frame into l.buf, honoring the layer timeout for
// the first byte and the data timeout for every subsequent byte. An
// oversized LEN aborts immediately rather than reading the bytes that
// would follow it.
func (l *Link) rxFrame() ([]byte, error) {
	b, err := l.port.ReadByte(layerTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	l.buf[0] = b

	if b != stx {
		return nil, fmt.Errorf("%w: got 0x%02x", errStrayByte, b)
	}

	remaining := lenMax
	offset := 1
	for ; offset < remaining; offset++ {
		b, err := l.port.ReadByte(dataTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		l.buf[offset] = b

		if offset == offsetLen {
			if int(b) > lenMax {
				return nil, fmt.Errorf("%w: LEN=%d", errOversizedFrame, b)
			}
			remaining = int(b)
		}
	}

	l.trace.Debugf("rx: % x", l.buf[:offset])
	l.lastPacket = l.now()
	return l.buf[:offset], nil
}
