package link

// doReset runs one attempt at the reset handshake: send a DISC frame
// carrying (E,S) forced to (0,0), and require a DISC+ACK reply with an
// empty payload.
func (l *Link) doReset() (outcome, error) {
	l.e, l.s = false, false

	req := l.pack(bits{disc: true}, nil)
	if err := l.txFrame(req); err != nil {
		return classify(err), err
	}

	reply, err := l.rxFrame()
	if err != nil {
		return classify(err), err
	}

	meta, payload, err := l.unpack(reply)
	if err != nil {
		return classify(err), err
	}

	if len(payload) != 0 {
		return outcomeRecoverable, ErrProtocolViolation
	}
	if !meta.ack || !meta.disc {
		return outcomeRecoverable, ErrProtocolViolation
	}

	return outcomeOK, nil
}

// doCommand runs one attempt at a full command transaction: request,
// ACK, reply, final ACK. The wire ordering is strict: any deviation
// from this exact sequence is a recoverable fault that the caller
// retries after a fresh reset.
func (l *Link) doCommand(request []byte) ([]byte, outcome, error) {
	req := l.pack(bits{s: l.s, e: l.e}, request)
	if err := l.txFrame(req); err != nil {
		return nil, classify(err), err
	}

	ackFrame, err := l.rxFrame()
	if err != nil {
		return nil, classify(err), err
	}
	ackMeta, ackPayload, err := l.unpack(ackFrame)
	if err != nil {
		return nil, classify(err), err
	}
	if len(ackPayload) != 0 || !ackMeta.ack || ackMeta.disc {
		return nil, outcomeRecoverable, ErrProtocolViolation
	}

	l.s = !l.s

	replyFrame, err := l.rxFrame()
	if err != nil {
		return nil, classify(err), err
	}
	replyMeta, replyPayload, err := l.unpack(replyFrame)
	if err != nil {
		return nil, classify(err), err
	}
	if len(replyPayload) == 0 || replyMeta.ack || replyMeta.disc {
		return nil, outcomeRecoverable, ErrProtocolViolation
	}

	reply := make([]byte, len(replyPayload))
	copy(reply, replyPayload)

	l.e = !replyMeta.s

	finalAck := l.pack(bits{ack: true}, nil)
	if err := l.txFrame(finalAck); err != nil {
		return nil, classify(err), err
	}

	return reply, outcomeOK, nil
}
