// Package wire implements Component A (§4.1): the framing & crypto
// primitives shared by every other component — symmetric encrypt/decrypt
// with a hash-derived IV, plaintext-hash integrity, and signed
// key-exchange envelopes.
//
// No pack or ecosystem AEAD library exposes "caller-supplied IV derived
// from a hash carried outside the ciphertext, integrity via a separate
// plaintext hash rather than an authentication tag" — §4.1 mandates this
// wire format bit-for-bit, so the symmetric primitive is built directly on
// stdlib crypto/aes + crypto/cipher rather than bent out of shape to fit
// an AEAD API. See DESIGN.md.
package wire

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"

	"github.com/jabolina/go-core/pkg/core/types"
)

const crypto512 = crypto.SHA512

// GenerateSessionKey creates a fresh random symmetric key for one
// direction of traffic (GLOSSARY "Session key").
func GenerateSessionKey() (types.SessionKey, error) {
	var key types.SessionKey
	if _, err := rand.Read(key.Bytes[:]); err != nil {
		return types.SessionKey{}, err
	}
	key.Valid = true
	return key, nil
}

// HashPlaintext computes the plaintext hash that doubles as both the
// integrity check and the cipher IV (§4.1, §6 "the hash field doubles as
// the IV for the symmetric cipher").
func HashPlaintext(plaintext []byte) types.Hash {
	return sha256.Sum256(plaintext)
}

// EncryptBody encrypts plaintext under key using AES-256-CTR with the IV
// derived from the plaintext's own hash, and returns both the ciphertext
// and that hash (to be carried unencrypted in the envelope prefix).
func EncryptBody(key types.SessionKey, plaintext []byte) ([]byte, types.Hash, error) {
	if !key.Valid {
		return nil, types.Hash{}, types.ErrNoSessionKey
	}
	hash := HashPlaintext(plaintext)
	block, err := aes.NewCipher(key.Bytes[:])
	if err != nil {
		return nil, types.Hash{}, err
	}
	iv := hash[:aes.BlockSize]
	stream := cipher.NewCTR(block, iv)
	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)
	return ciphertext, hash, nil
}

// DecryptBody decrypts ciphertext under key using the IV derived from
// hash, then verifies the recomputed plaintext hash matches hash (§4.1
// "recompute plaintext hash ... reject if it does not match").
func DecryptBody(key types.SessionKey, hash types.Hash, ciphertext []byte) ([]byte, error) {
	if !key.Valid {
		return nil, types.ErrNoSessionKey
	}
	block, err := aes.NewCipher(key.Bytes[:])
	if err != nil {
		return nil, err
	}
	iv := hash[:aes.BlockSize]
	stream := cipher.NewCTR(block, iv)
	plaintext := make([]byte, len(ciphertext))
	stream.XORKeyStream(plaintext, ciphertext)

	if HashPlaintext(plaintext) != hash {
		return nil, types.ErrHashMismatch
	}
	return plaintext, nil
}

// EncryptSessionKeyRSA encapsulates a session key for the peer's long-term
// RSA public key (§4.1 "RSA-encrypted session key blob").
func EncryptSessionKeyRSA(pub *rsa.PublicKey, key types.SessionKey) ([]byte, error) {
	return rsa.EncryptOAEP(sha512.New(), rand.Reader, pub, key.Bytes[:], nil)
}

// DecryptSessionKeyRSA reverses EncryptSessionKeyRSA under our long-term
// private key.
func DecryptSessionKeyRSA(priv *rsa.PrivateKey, blob []byte) (types.SessionKey, error) {
	raw, err := rsa.DecryptOAEP(sha512.New(), rand.Reader, priv, blob, nil)
	if err != nil {
		return types.SessionKey{}, err
	}
	if len(raw) != len(types.SessionKey{}.Bytes) {
		return types.SessionKey{}, types.ErrNoSessionKey
	}
	var key types.SessionKey
	copy(key.Bytes[:], raw)
	key.Valid = true
	return key, nil
}

// SignPurpose signs data (the SET_KEY purpose region) under our long-term
// private key (§4.1 "signature over the purpose region").
func SignPurpose(priv *rsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha512.Sum512(data)
	return rsa.SignPSS(rand.Reader, priv, crypto512, digest[:], nil)
}

// VerifyPurpose verifies a SignPurpose signature under the peer's
// long-term public key (§4.1 rule 3).
func VerifyPurpose(pub *rsa.PublicKey, data, signature []byte) error {
	digest := sha512.Sum512(data)
	return rsa.VerifyPSS(pub, crypto512, digest[:], signature, nil)
}

// VerifySetKeyEnvelope checks env's signature under the sender's long-term
// public key, reconstructing the exact purpose region that was signed
// (§4.1 rule 3).
func VerifySetKeyEnvelope(pub *rsa.PublicKey, env types.SetKeyEnvelope) error {
	return VerifyPurpose(pub, purposeBytes(env), env.Signature)
}

// SignSetKeyEnvelope signs env's purpose region under our long-term
// private key, returning the signature to be stored in env.Signature
// before marshaling (§4.1 rule 3).
func SignSetKeyEnvelope(priv *rsa.PrivateKey, env types.SetKeyEnvelope) ([]byte, error) {
	return SignPurpose(priv, purposeBytes(env))
}
