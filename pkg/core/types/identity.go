package types

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
)

// PeerID is the opaque fixed-size handle the core operates on: the hash of
// a peer's long-term public key. Equality and hashing (it is comparable,
// usable as a map key) are the only operations the core needs of it.
type PeerID [32]byte

func (p PeerID) String() string {
	return hex.EncodeToString(p[:])
}

func (p PeerID) IsZero() bool {
	return p == PeerID{}
}

// PublicKey wraps the long-term RSA public key the peer-info directory
// resolves for a PeerID. It is a value type: neighbors cache it by value
// once resolved (§3 "Ownership").
type PublicKey struct {
	Key *rsa.PublicKey
}

func (k PublicKey) Valid() bool {
	return k.Key != nil
}

// DeriveIdentity computes the PeerID a host's own public key maps to:
// the sha256 hash of its PKCS#1 DER encoding.
func DeriveIdentity(pub PublicKey) PeerID {
	return sha256.Sum256(x509.MarshalPKCS1PublicKey(pub.Key))
}

// ClientID is an opaque handle identifying a registered client (§3
// "Client"). Neighbors and other components reference clients by this ID,
// never by pointer, so the client table remains the sole owner of the
// underlying transport handle (§9 "Cyclic references").
type ClientID uint64
