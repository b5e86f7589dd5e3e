// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: Ring size, input limits, fees. Fixed per network,
//     must match the consensus network the wallet talks to.
//   - Daemon settings: Runtime configuration, can vary per installation.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Daemon Configuration (runtime, per-installation settings)
// =============================================================================

// Config holds daemon-specific runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Ledger sync
	Sync SyncConfig

	// Transaction construction
	Tx TxConfig

	// Logging
	Log LogConfig
}

// SyncConfig holds ledger sync engine settings.
type SyncConfig struct {
	// NumWorkers is the size of the fixed sync worker pool.
	NumWorkers int `conf:"sync.workers"`

	// PollInterval is how often the coordinator scans accounts and the
	// ledger tip for new work.
	PollInterval time.Duration `conf:"sync.poll"`

	// ChunkSize is the maximum number of blocks a worker processes per
	// sync pass before re-checking for interleaved work.
	ChunkSize uint64 `conf:"sync.chunk"`
}

// TxConfig holds transaction construction settings.
type TxConfig struct {
	// TombstoneHorizon is the number of blocks past the current tip at
	// which an unsubmitted transaction expires when the caller does not
	// pick a tombstone explicitly.
	TombstoneHorizon uint64 `conf:"tx.tombstone_horizon"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.umbra-wallet
//	macOS:   ~/Library/Application Support/UmbraWallet
//	Windows: %APPDATA%\UmbraWallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".umbra-wallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "UmbraWallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "UmbraWallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "UmbraWallet")
	default:
		return filepath.Join(home, ".umbra-wallet")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// WalletDBDir returns the wallet database directory.
func (c *Config) WalletDBDir() string {
	return filepath.Join(c.NetworkDataDir(), "walletdb")
}

// LedgerDir returns the local ledger copy directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.NetworkDataDir(), "ledger")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "umbra-wallet.conf")
}
