package config

import (
	"time"

	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// =============================================================================
// Protocol rules (fixed per network, not operator-tunable)
// =============================================================================

const (
	// RingSize is the number of members in every input ring, one real
	// output hidden among RingSize-1 decoys.
	RingSize = 11

	// MaxInputs is the maximum number of inputs a single transaction may
	// spend.
	MaxInputs = 16

	// DefaultTombstoneHorizon is the default number of blocks past the
	// current tip before an unsubmitted transaction expires.
	DefaultTombstoneHorizon = 50

	// MaxBlocksChunkSize caps how many blocks a sync worker processes in
	// one pass.
	MaxBlocksChunkSize = 5

	// DefaultPollInterval is how often the sync coordinator scans for
	// new work.
	DefaultPollInterval = time.Second

	// DefaultSyncWorkers is the default size of the sync worker pool.
	DefaultSyncWorkers = 4

	// NativeMinimumFee is the consensus minimum fee for the native token,
	// in its smallest denomination.
	NativeMinimumFee = 400_000_000
)

// MinimumFees maps each token the network charges fees in to its consensus
// minimum fee. Tokens absent from this map cannot pay fees without an
// explicit caller-provided fee value.
func MinimumFees() map[types.TokenID]uint64 {
	return map[types.TokenID]uint64{
		types.TokenNative: NativeMinimumFee,
	}
}

// =============================================================================
// Daemon defaults
// =============================================================================

// DefaultMainnet returns the default daemon configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Sync: SyncConfig{
			NumWorkers:   DefaultSyncWorkers,
			PollInterval: DefaultPollInterval,
			ChunkSize:    MaxBlocksChunkSize,
		},
		Tx: TxConfig{
			TombstoneHorizon: DefaultTombstoneHorizon,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default daemon configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	return cfg
}

// Default returns the default daemon configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
