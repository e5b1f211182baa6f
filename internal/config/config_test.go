package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "core.toml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadParsesHumanByteRates(t *testing.T) {
	path := writeTempConfig(t, `
total_quota_in = "10MiB"
total_quota_out = "5MiB"
hostkey_path = "/tmp/hostkey.pem"
listen_addr = "0.0.0.0:4242"
log_level = "info"
`)

	cfg, file, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TotalQuotaIn != 10*1024*1024 {
		t.Errorf("expected 10MiB in bytes, got %d", cfg.TotalQuotaIn)
	}
	if cfg.TotalQuotaOut != 5*1024*1024 {
		t.Errorf("expected 5MiB in bytes, got %d", cfg.TotalQuotaOut)
	}
	if file.ListenAddr != "0.0.0.0:4242" {
		t.Errorf("expected listen_addr round-tripped, got %q", file.ListenAddr)
	}
}

func TestLoadRejectsMissingQuota(t *testing.T) {
	path := writeTempConfig(t, `
total_quota_out = "5MiB"
hostkey_path = "/tmp/hostkey.pem"
`)

	if _, _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing total_quota_in")
	}
}

func TestCheckProtocolVersionRejectsOlder(t *testing.T) {
	if err := CheckProtocolVersion("0.9.0"); err == nil {
		t.Fatalf("expected rejection of older protocol version")
	}
	if err := CheckProtocolVersion(ProtocolVersion); err != nil {
		t.Fatalf("expected current protocol version accepted, got %v", err)
	}
}

func TestLoadHostIdentityGeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hostkey.pem")

	first, err := LoadHostIdentity(path, 1024)
	if err != nil {
		t.Fatalf("generating host identity: %v", err)
	}

	second, err := LoadHostIdentity(path, 1024)
	if err != nil {
		t.Fatalf("reloading host identity: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected reloaded identity to match generated one")
	}
}
