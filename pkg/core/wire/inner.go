package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/jabolina/go-core/pkg/core/types"
)

// AppendInner appends one length-prefixed inner message to a batch buffer
// (§4.4, §6): a { u16 size; u16 type; } header immediately followed by
// size bytes of payload.
func AppendInner(buf []byte, msgType uint16, payload []byte) []byte {
	var hdr [types.InnerHeaderSize]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(len(payload)))
	binary.BigEndian.PutUint16(hdr[2:4], msgType)
	buf = append(buf, hdr[:]...)
	buf = append(buf, payload...)
	return buf
}

// InnerMessage is one parsed entry from a batch (§4.4).
type InnerMessage struct {
	Type    uint16
	Payload []byte
}

// WalkInner splits a decrypted batch body into its concatenated inner
// messages (§4.4). Each header is copied into an aligned scratch array
// before its size field is read, since the header may start at an odd
// offset inside the batch buffer (§4.4 "Potentially-unaligned headers
// must be copied to aligned scratch before reading the size field").
func WalkInner(data []byte) ([]InnerMessage, error) {
	var out []InnerMessage
	offset := 0
	for offset < len(data) {
		if offset+types.InnerHeaderSize > len(data) {
			return nil, fmt.Errorf("wire: truncated inner header at offset %d", offset)
		}
		var scratch [types.InnerHeaderSize]byte
		copy(scratch[:], data[offset:offset+types.InnerHeaderSize])
		size := binary.BigEndian.Uint16(scratch[0:2])
		typ := binary.BigEndian.Uint16(scratch[2:4])
		offset += types.InnerHeaderSize

		if offset+int(size) > len(data) {
			return nil, fmt.Errorf("wire: truncated inner payload at offset %d", offset)
		}
		payload := data[offset : offset+int(size)]
		out = append(out, InnerMessage{Type: typ, Payload: payload})
		offset += int(size)
	}
	return out, nil
}
