package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PRIVY_APP_ID", "app1")
	t.Setenv("PRIVY_APP_SECRET", "secret1")
	t.Setenv("PRIVY_VERIFICATION_KEY", "-----BEGIN PUBLIC KEY-----\nxx\n-----END PUBLIC KEY-----")
	t.Setenv("MNEMONIC", "test test test test test test test test test test test junk")
	t.Setenv("SEPOLIA_RPC_URL", "https://sepolia.example/rpc")
	t.Setenv("ESCROW_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	t.Setenv("ESCROW_CHAIN_ID", "11155111")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != defaultPort {
		t.Fatalf("port = %d", cfg.Port)
	}
	if cfg.PollInterval != 2*time.Second || cfg.RPCTimeout != 30*time.Second {
		t.Fatalf("defaults: poll=%v rpc=%v", cfg.PollInterval, cfg.RPCTimeout)
	}
	urls := cfg.RPCURLs()
	if urls[sepoliaChainID] != "https://sepolia.example/rpc" {
		t.Fatalf("rpc urls = %v", urls)
	}
}

func TestLoadRequiresEscrowChainEndpoint(t *testing.T) {
	setRequired(t)
	t.Setenv("ESCROW_CHAIN_ID", "84532") // no BASE_SEPOLIA_RPC_URL configured
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for escrow chain without endpoint")
	}
}

func TestLoadRequiresMnemonic(t *testing.T) {
	setRequired(t)
	t.Setenv("MNEMONIC", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing mnemonic")
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_PORT", "not-a-port")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for bad port")
	}
}

func TestChainsFileExtendsChains(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "chains.yaml")
	content := "chains:\n  - chainId: 31337\n    name: anvil\n    rpcUrl: http://localhost:8545\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write chains file: %v", err)
	}
	t.Setenv("CHAINS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RPCURLs()[31337] != "http://localhost:8545" {
		t.Fatalf("chains file not merged: %v", cfg.RPCURLs())
	}
}

func TestChainsFileRejectsBadEntry(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "chains.yaml")
	if err := os.WriteFile(path, []byte("chains:\n  - name: broken\n"), 0o644); err != nil {
		t.Fatalf("write chains file: %v", err)
	}
	t.Setenv("CHAINS_FILE", path)
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for chains file entry without rpcUrl")
	}
}
