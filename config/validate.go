package config

import "fmt"

// Validate checks runtime daemon config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.Sync.NumWorkers <= 0 {
		return fmt.Errorf("sync.workers must be positive")
	}
	if cfg.Sync.PollInterval <= 0 {
		return fmt.Errorf("sync.poll must be positive")
	}
	if cfg.Sync.ChunkSize == 0 {
		return fmt.Errorf("sync.chunk must be positive")
	}
	if cfg.Sync.ChunkSize > MaxBlocksChunkSize {
		return fmt.Errorf("sync.chunk must not exceed %d", MaxBlocksChunkSize)
	}
	if cfg.Tx.TombstoneHorizon == 0 {
		return fmt.Errorf("tx.tombstone_horizon must be positive")
	}
	return nil
}
