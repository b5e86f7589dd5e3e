package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultMainnet()
	if cfg.Network != Mainnet {
		t.Errorf("default network = %q, want %q", cfg.Network, Mainnet)
	}
	if cfg.Sync.NumWorkers != DefaultSyncWorkers {
		t.Errorf("default sync workers = %d, want %d", cfg.Sync.NumWorkers, DefaultSyncWorkers)
	}
	if cfg.Sync.ChunkSize != MaxBlocksChunkSize {
		t.Errorf("default chunk = %d, want %d", cfg.Sync.ChunkSize, MaxBlocksChunkSize)
	}
	if cfg.Tx.TombstoneHorizon != DefaultTombstoneHorizon {
		t.Errorf("default tombstone horizon = %d, want %d", cfg.Tx.TombstoneHorizon, DefaultTombstoneHorizon)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestMinimumFees(t *testing.T) {
	fees := MinimumFees()
	if fees[0] != NativeMinimumFee {
		t.Errorf("native minimum fee = %d, want %d", fees[0], NativeMinimumFee)
	}

	// Callers get a copy they may mutate.
	fees[0] = 1
	if MinimumFees()[0] != NativeMinimumFee {
		t.Error("mutating the returned map changed the defaults")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.conf")
	content := `# comment
network = testnet

sync.workers = 8
sync.poll = 250ms
sync.chunk = 3
tx.tombstone_horizon = 25
log.level = "debug"
unknown.key = ignored
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	cfg := DefaultMainnet()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}

	if cfg.Network != Testnet {
		t.Errorf("network = %q, want testnet", cfg.Network)
	}
	if cfg.Sync.NumWorkers != 8 {
		t.Errorf("sync workers = %d, want 8", cfg.Sync.NumWorkers)
	}
	if cfg.Sync.PollInterval != 250*time.Millisecond {
		t.Errorf("sync poll = %v, want 250ms", cfg.Sync.PollInterval)
	}
	if cfg.Sync.ChunkSize != 3 {
		t.Errorf("sync chunk = %d, want 3", cfg.Sync.ChunkSize)
	}
	if cfg.Tx.TombstoneHorizon != 25 {
		t.Errorf("tombstone horizon = %d, want 25", cfg.Tx.TombstoneHorizon)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug (quotes stripped)", cfg.Log.Level)
	}
}

func TestLoadFileMissing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("missing file yielded %d values", len(values))
	}
}

func TestLoadFileBadLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.conf")
	if err := os.WriteFile(path, []byte("no equals sign here\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for malformed line")
	}
}

func TestApplyFileConfigBadValue(t *testing.T) {
	cfg := DefaultMainnet()
	err := ApplyFileConfig(cfg, map[string]string{"sync.workers": "many"})
	if err == nil {
		t.Error("expected error for non-numeric sync.workers")
	}
}

func TestWriteDefaultConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "umbra-wallet.conf")
	if err := WriteDefaultConfig(path, Testnet); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg := DefaultMainnet()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if cfg.Network != Testnet {
		t.Errorf("network = %q, want testnet", cfg.Network)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("generated config failed validation: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultMainnet()
		cfg.DataDir = "/tmp/x"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad network", func(c *Config) { c.Network = "devnet" }},
		{"zero workers", func(c *Config) { c.Sync.NumWorkers = 0 }},
		{"zero poll", func(c *Config) { c.Sync.PollInterval = 0 }},
		{"zero chunk", func(c *Config) { c.Sync.ChunkSize = 0 }},
		{"oversized chunk", func(c *Config) { c.Sync.ChunkSize = MaxBlocksChunkSize + 1 }},
		{"zero horizon", func(c *Config) { c.Tx.TombstoneHorizon = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := Validate(base()); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestNetworkDirs(t *testing.T) {
	cfg := DefaultMainnet()
	cfg.DataDir = "/data"
	cfg.Network = Testnet

	if got := cfg.NetworkDataDir(); got != filepath.Join("/data", "testnet") {
		t.Errorf("NetworkDataDir = %q", got)
	}
	if got := cfg.WalletDBDir(); got != filepath.Join("/data", "testnet", "walletdb") {
		t.Errorf("WalletDBDir = %q", got)
	}
	if got := cfg.LedgerDir(); got != filepath.Join("/data", "testnet", "ledger") {
		t.Errorf("LedgerDir = %q", got)
	}
}
