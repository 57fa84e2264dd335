package wire

// Answers reports whether reply can be the answer to a request with op and
// payload. Opcode alone is not enough once a request has been resent: the
// device answers every copy, and the extra reply would otherwise be taken
// by the next request with the same opcode.
//
// Replies that echo a key are checked against it: a WriteChunk ack must
// echo the offset written and a QuerySlot reply must describe the slot
// asked for. Non-ACK replies carry no key and always match.
func Answers(op Opcode, payload []byte, reply Frame) bool {
	if reply.Opcode != op {
		return false
	}
	if reply.Ack != AckOK {
		return true
	}
	switch op {
	case OpWriteChunk:
		off, _, err := DecodeChunk(payload)
		if err != nil {
			return true
		}
		echoed, err := DecodeChunkAck(reply.Payload)
		return err != nil || echoed == off
	case OpQuerySlot:
		if len(payload) < 1 || len(reply.Payload) < 1 {
			return true
		}
		return reply.Payload[0] == payload[0]
	}
	return true
}
