package types

// SessionKey is the ephemeral symmetric key used for one direction of
// encrypted traffic between two peers (GLOSSARY "Session key"). Value
// typed, per §3 "Ownership: Session keys are value-typed inside the
// neighbor."
type SessionKey struct {
	Bytes [32]byte
	Valid bool
}
