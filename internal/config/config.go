// Package config loads a host's startup configuration from a TOML file,
// the way dolthub-dolt's config layer decodes its on-disk settings with
// BurntSushi/toml rather than hand-rolled flag parsing. Byte-rate fields
// accept human units ("10MB", "512KiB") via alecthomas/units, and the
// configured protocol version is checked for compatibility with
// hashicorp/go-version.
package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/alecthomas/units"
	"github.com/hashicorp/go-version"

	"github.com/jabolina/go-core/pkg/core/types"
)

// ProtocolVersion is this build's wire-protocol version (§4.1, §4.7).
const ProtocolVersion = "1.0.0"

// MinCompatibleVersion is the oldest peer protocol version this build
// will key-exchange with.
const MinCompatibleVersion = "1.0.0"

// File mirrors the on-disk TOML layout. Byte-rate fields are strings so
// they can carry a unit suffix ("5MB", "256KiB") instead of a bare
// integer of bytes/minute.
type File struct {
	TotalQuotaIn  string `toml:"total_quota_in"`
	TotalQuotaOut string `toml:"total_quota_out"`
	HostKeyPath   string `toml:"hostkey_path"`
	ListenAddr    string `toml:"listen_addr"`
	LogLevel      string `toml:"log_level"`
	MetricsAddr   string `toml:"metrics_addr"`
}

// Load reads and decodes path into a types.Config plus the ambient
// fields (listen address, log level, metrics address) the core module
// itself does not need.
func Load(path string) (types.Config, File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return types.Config{}, File{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	quotaIn, err := parseBpm(f.TotalQuotaIn)
	if err != nil {
		return types.Config{}, File{}, fmt.Errorf("config: total_quota_in: %w", err)
	}
	quotaOut, err := parseBpm(f.TotalQuotaOut)
	if err != nil {
		return types.Config{}, File{}, fmt.Errorf("config: total_quota_out: %w", err)
	}

	cfg := types.Config{
		TotalQuotaIn:  quotaIn,
		TotalQuotaOut: quotaOut,
		HostKeyPath:   f.HostKeyPath,
	}
	if err := types.ValidateConfig(cfg); err != nil {
		return types.Config{}, File{}, err
	}
	return cfg, f, nil
}

// parseBpm interprets a human byte-quantity string as bytes/minute.
func parseBpm(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	b, err := units.ParseBase2Bytes(s)
	if err != nil {
		return 0, err
	}
	if b < 0 {
		return 0, fmt.Errorf("negative quota %q", s)
	}
	return uint64(b), nil
}

// CheckProtocolVersion rejects a peer whose advertised protocol version
// is older than MinCompatibleVersion (§4.7 "version negotiation is out
// of scope for message framing, but a host must refuse to exchange keys
// with an incompatible peer").
func CheckProtocolVersion(peerVersion string) error {
	pv, err := version.NewVersion(peerVersion)
	if err != nil {
		return fmt.Errorf("config: invalid peer protocol version %q: %w", peerVersion, err)
	}
	min, err := version.NewVersion(MinCompatibleVersion)
	if err != nil {
		return err
	}
	if pv.LessThan(min) {
		return fmt.Errorf("config: peer protocol version %s older than minimum %s", pv, min)
	}
	return nil
}

// LoadHostIdentity reads a PEM-encoded PKCS#1 RSA private key from path
// (§6 "HOSTKEY"), generating and persisting a fresh one if the file does
// not yet exist.
func LoadHostIdentity(path string, keyBits int) (types.HostIdentity, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		priv, genErr := rsa.GenerateKey(rand.Reader, keyBits)
		if genErr != nil {
			return types.HostIdentity{}, fmt.Errorf("config: generating host key: %w", genErr)
		}
		if writeErr := writeHostKey(path, priv); writeErr != nil {
			return types.HostIdentity{}, writeErr
		}
		return identityFromKey(priv), nil
	}
	if err != nil {
		return types.HostIdentity{}, fmt.Errorf("config: reading host key %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return types.HostIdentity{}, fmt.Errorf("config: %s is not a PEM file", path)
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return types.HostIdentity{}, fmt.Errorf("config: parsing host key %s: %w", path, err)
	}
	return identityFromKey(priv), nil
}

func identityFromKey(priv *rsa.PrivateKey) types.HostIdentity {
	pub := types.PublicKey{Key: &priv.PublicKey}
	return types.HostIdentity{
		Private: priv,
		Public:  pub,
		ID:      types.DeriveIdentity(pub),
	}
}

func writeHostKey(path string, priv *rsa.PrivateKey) error {
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("config: creating host key %s: %w", path, err)
	}
	defer f.Close()
	return pem.Encode(f, block)
}
