package link

// pack writes meta and payload into l.buf as a complete, CRC-sealed
// frame and returns the slice of l.buf that holds it. payload may be
// nil or empty.
func (l *Link) pack(meta bits, payload []byte) []byte {
	n := lenMin + len(payload)
	p := l.buf[:n]

	p[offsetSTX] = stx
	p[offsetLen] = byte(n)
	p[offsetLink] = meta.encode()
	copy(p[offsetMsg:], payload)
	p[n-3] = etx

	crc := crc16(p[:n-2])
	p[n-2] = byte(crc)
	p[n-1] = byte(crc >> 8)

	return p
}

// validate checks the structural invariants of a received frame: STX,
// ETX position, length bounds, reserved bits, and CRC. It has no side
// effects.
func validate(p []byte) bool {
	if len(p) < lenMin {
		return false
	}

	n := int(p[offsetLen])
	if n < lenMin || n > lenMax || n > len(p) {
		return false
	}

	if p[offsetSTX] != stx {
		return false
	}
	if p[offsetLink]&linkReservedMask != 0 {
		return false
	}
	if p[n-3] != etx {
		return false
	}

	crc := crc16(p[:n-2])
	if p[n-2] != byte(crc) || p[n-1] != byte(crc>>8) {
		return false
	}

	return true
}

// unpack validates p and decodes its LINK byte and payload. The peer's
// S bit is checked against the local E bit; a mismatch is a sequence
// error.
func (l *Link) unpack(p []byte) (bits, []byte, error) {
	if !validate(p) {
		return bits{}, nil, ErrCorruption
	}

	meta := decodeBits(p[offsetLink])
	if meta.s != l.e {
		return bits{}, nil, ErrSequenceMismatch
	}

	n := int(p[offsetLen])
	payload := p[offsetMsg : n-3]

	return meta, payload, nil
}
