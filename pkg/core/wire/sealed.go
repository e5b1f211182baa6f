package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/jabolina/go-core/pkg/core/types"
)

// SealMessage frames and encrypts a small fixed-body message (PING/PONG,
// §4.1, §6) under key: header, then the hash that doubles as IV, then the
// ciphertext — the same unencrypted-prefix shape as ENCRYPTED_MESSAGE,
// generalized to any message type carrying a single encrypted body rather
// than a batch.
func SealMessage(msgType types.MessageType, key types.SessionKey, plaintext []byte) ([]byte, error) {
	ciphertext, hash, err := EncryptBody(key, plaintext)
	if err != nil {
		return nil, err
	}
	out := &bytes.Buffer{}
	header := types.MessageHeader{Type: msgType, Size: uint16(2 + 2 + types.HashSize + len(ciphertext))}
	writeHeader(out, header)
	out.Write(hash[:])
	out.Write(ciphertext)
	return out.Bytes(), nil
}

// OpenMessage reverses SealMessage, returning the envelope's declared
// type and decrypted plaintext.
func OpenMessage(key types.SessionKey, data []byte) (types.MessageType, []byte, error) {
	if len(data) < 2+2+types.HashSize {
		return 0, nil, fmt.Errorf("wire: sealed message too short")
	}
	r := bytes.NewReader(data)
	header, err := readHeader(r)
	if err != nil {
		return 0, nil, err
	}
	var hash types.Hash
	if _, err := r.Read(hash[:]); err != nil {
		return 0, nil, err
	}
	ciphertext := data[2+2+types.HashSize:]
	plaintext, err := DecryptBody(key, hash, ciphertext)
	if err != nil {
		return header.Type, nil, err
	}
	return header.Type, plaintext, nil
}

// PeekMessageType reads just the header of a raw datagram, used by the
// dispatcher to decide which component should handle it before any
// decryption is attempted (§4.7).
func PeekMessageType(data []byte) (types.MessageType, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("wire: datagram too short for header")
	}
	var typ uint16
	if err := binary.Read(bytes.NewReader(data[2:4]), binary.BigEndian, &typ); err != nil {
		return 0, err
	}
	return types.MessageType(typ), nil
}
