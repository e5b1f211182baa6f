package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jabolina/go-core/pkg/core/types"
)

// writeHeader/readHeader implement the common { u16 size; u16 type; }
// prefix (§6).
func writeHeader(buf *bytes.Buffer, h types.MessageHeader) {
	binary.Write(buf, binary.BigEndian, h.Size)
	binary.Write(buf, binary.BigEndian, uint16(h.Type))
}

func readHeader(r *bytes.Reader) (types.MessageHeader, error) {
	var size, typ uint16
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return types.MessageHeader{}, err
	}
	if err := binary.Read(r, binary.BigEndian, &typ); err != nil {
		return types.MessageHeader{}, err
	}
	return types.MessageHeader{Size: size, Type: types.MessageType(typ)}, nil
}

// purposeBytes reassembles the signed region of a SET_KEY envelope —
// PurposeSize, Purpose, Created, EncryptedKey, Target — used both when
// signing and when verifying (§4.1 "signature over the purpose region").
// The encrypted-key blob is length-prefixed so the region is
// self-describing on the wire.
func purposeBytes(env types.SetKeyEnvelope) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, env.PurposeSize)
	binary.Write(buf, binary.BigEndian, env.Purpose)
	binary.Write(buf, binary.BigEndian, uint64(env.Created.Unix()))
	binary.Write(buf, binary.BigEndian, uint32(len(env.EncryptedKey)))
	buf.Write(env.EncryptedKey)
	buf.Write(env.Target[:])
	return buf.Bytes()
}

// MarshalSetKey serializes a SET_KEY envelope to wire bytes (§6).
func MarshalSetKey(env types.SetKeyEnvelope) []byte {
	body := &bytes.Buffer{}
	binary.Write(body, binary.BigEndian, uint32(env.SenderState))
	body.Write(purposeBytes(env))
	binary.Write(body, binary.BigEndian, uint32(len(env.Signature)))
	body.Write(env.Signature)

	out := &bytes.Buffer{}
	header := types.MessageHeader{Type: types.SetKey, Size: uint16(body.Len() + 4)}
	writeHeader(out, header)
	out.Write(body.Bytes())
	return out.Bytes()
}

// UnmarshalSetKey parses a SET_KEY envelope from wire bytes. It does not
// validate the envelope (purpose size, target, signature) — that is
// pkg/core/kx's job, per §4.1.
func UnmarshalSetKey(data []byte) (types.SetKeyEnvelope, error) {
	r := bytes.NewReader(data)
	header, err := readHeader(r)
	if err != nil {
		return types.SetKeyEnvelope{}, err
	}
	if header.Type != types.SetKey {
		return types.SetKeyEnvelope{}, fmt.Errorf("wire: expected SET_KEY, got %s", header.Type)
	}

	var env types.SetKeyEnvelope
	env.Header = header

	var state uint32
	if err := binary.Read(r, binary.BigEndian, &state); err != nil {
		return types.SetKeyEnvelope{}, err
	}
	env.SenderState = types.KXState(state)

	if err := binary.Read(r, binary.BigEndian, &env.PurposeSize); err != nil {
		return types.SetKeyEnvelope{}, err
	}
	if err := binary.Read(r, binary.BigEndian, &env.Purpose); err != nil {
		return types.SetKeyEnvelope{}, err
	}
	var created uint64
	if err := binary.Read(r, binary.BigEndian, &created); err != nil {
		return types.SetKeyEnvelope{}, err
	}
	env.Created = time.Unix(int64(created), 0).UTC()

	var keyLen uint32
	if err := binary.Read(r, binary.BigEndian, &keyLen); err != nil {
		return types.SetKeyEnvelope{}, err
	}
	env.EncryptedKey = make([]byte, keyLen)
	if _, err := r.Read(env.EncryptedKey); err != nil {
		return types.SetKeyEnvelope{}, err
	}

	if _, err := r.Read(env.Target[:]); err != nil {
		return types.SetKeyEnvelope{}, err
	}

	var sigLen uint32
	if err := binary.Read(r, binary.BigEndian, &sigLen); err != nil {
		return types.SetKeyEnvelope{}, err
	}
	env.Signature = make([]byte, sigLen)
	if _, err := r.Read(env.Signature); err != nil {
		return types.SetKeyEnvelope{}, err
	}

	return env, nil
}

// MarshalEncryptedEnvelope serializes an ENCRYPTED_MESSAGE: unencrypted
// prefix (header, reserved, hash) followed by the ciphertext body (§4.1,
// §6).
func MarshalEncryptedEnvelope(env types.EncryptedEnvelope) []byte {
	out := &bytes.Buffer{}
	header := env.Header
	header.Type = types.EncryptedMessage
	header.Size = uint16(types.EncryptedHeaderOffset + len(env.Body))
	writeHeader(out, header)
	binary.Write(out, binary.BigEndian, env.Reserved)
	out.Write(env.BodyHash[:])
	out.Write(env.Body)
	return out.Bytes()
}

// UnmarshalEncryptedEnvelope parses the unencrypted prefix of an
// ENCRYPTED_MESSAGE, leaving Body as the still-encrypted ciphertext.
func UnmarshalEncryptedEnvelope(data []byte) (types.EncryptedEnvelope, error) {
	if len(data) < types.EncryptedHeaderOffset {
		return types.EncryptedEnvelope{}, fmt.Errorf("wire: encrypted envelope too short")
	}
	r := bytes.NewReader(data)
	header, err := readHeader(r)
	if err != nil {
		return types.EncryptedEnvelope{}, err
	}
	if header.Type != types.EncryptedMessage {
		return types.EncryptedEnvelope{}, fmt.Errorf("wire: expected ENCRYPTED_MESSAGE, got %s", header.Type)
	}
	var env types.EncryptedEnvelope
	env.Header = header
	if err := binary.Read(r, binary.BigEndian, &env.Reserved); err != nil {
		return types.EncryptedEnvelope{}, err
	}
	if _, err := r.Read(env.BodyHash[:]); err != nil {
		return types.EncryptedEnvelope{}, err
	}
	env.Body = data[types.EncryptedHeaderOffset:]
	return env, nil
}

// MarshalEncryptedBody serializes the plaintext body encrypted inside an
// ENCRYPTED_MESSAGE: sequence, quota hint, timestamp, then the
// concatenated inner messages (§4.1).
func MarshalEncryptedBody(b types.EncryptedBody) []byte {
	out := &bytes.Buffer{}
	binary.Write(out, binary.BigEndian, b.Sequence)
	binary.Write(out, binary.BigEndian, b.QuotaHint)
	binary.Write(out, binary.BigEndian, uint64(b.Timestamp.Unix()))
	out.Write(b.InnerBytes)
	return out.Bytes()
}

// UnmarshalEncryptedBody parses a decrypted plaintext body.
func UnmarshalEncryptedBody(data []byte) (types.EncryptedBody, error) {
	if len(data) < 4+4+8 {
		return types.EncryptedBody{}, fmt.Errorf("wire: encrypted body too short")
	}
	r := bytes.NewReader(data)
	var b types.EncryptedBody
	if err := binary.Read(r, binary.BigEndian, &b.Sequence); err != nil {
		return types.EncryptedBody{}, err
	}
	if err := binary.Read(r, binary.BigEndian, &b.QuotaHint); err != nil {
		return types.EncryptedBody{}, err
	}
	var ts uint64
	if err := binary.Read(r, binary.BigEndian, &ts); err != nil {
		return types.EncryptedBody{}, err
	}
	b.Timestamp = time.Unix(int64(ts), 0).UTC()
	b.InnerBytes = data[16:]
	return b, nil
}

// MarshalPingPong serializes the 36-byte PING/PONG plaintext body (§4.1,
// §6) — this is the payload that gets symmetrically encrypted, not a
// standalone envelope.
func MarshalPingPong(b types.PingPongBody) []byte {
	out := &bytes.Buffer{}
	binary.Write(out, binary.BigEndian, b.Challenge)
	out.Write(b.Target[:])
	return out.Bytes()
}

func UnmarshalPingPong(data []byte) (types.PingPongBody, error) {
	if len(data) != 4+32 {
		return types.PingPongBody{}, fmt.Errorf("wire: bad ping/pong body length %d", len(data))
	}
	r := bytes.NewReader(data)
	var b types.PingPongBody
	if err := binary.Read(r, binary.BigEndian, &b.Challenge); err != nil {
		return types.PingPongBody{}, err
	}
	if _, err := r.Read(b.Target[:]); err != nil {
		return types.PingPongBody{}, err
	}
	return b, nil
}
