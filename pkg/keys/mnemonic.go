package keys

import (
	"fmt"

	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
)

// MnemonicEntropyBits is the entropy size for 24-word mnemonics.
const MnemonicEntropyBits = 256

// BIP-44 derivation path constants.
// Full path: m/44'/866'/account' with children 0 (view) and 1 (spend).
const (
	purposeBIP44 = bip32.FirstHardenedChild + 44
	coinTypeUmbra = bip32.FirstHardenedChild + 866
)

// GenerateMnemonic creates a new 24-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic checks if a mnemonic is valid per BIP-39
// (correct word count, valid words, valid checksum).
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// AccountKeyFromMnemonic derives an account's view/spend key pair from a
// BIP-39 mnemonic at m/44'/866'/accountIndex'. The two leaf keys are
// hashed to scalars so the wallet keys stay independent of the secp256k1
// BIP-32 key encoding.
func AccountKeyFromMnemonic(mnemonic string, accountIndex uint32) (*AccountKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, "")

	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}

	account := master
	for _, idx := range []uint32{purposeBIP44, coinTypeUmbra, bip32.FirstHardenedChild + accountIndex} {
		account, err = account.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
	}

	viewChild, err := account.NewChildKey(0)
	if err != nil {
		return nil, fmt.Errorf("derive view key: %w", err)
	}
	spendChild, err := account.NewChildKey(1)
	if err != nil {
		return nil, fmt.Errorf("derive spend key: %w", err)
	}

	view := crypto.ScalarFromHash("umbra.rootkey.view", viewChild.Key)
	spend := crypto.ScalarFromHash("umbra.rootkey.spend", spendChild.Key)
	return NewAccountKey(view, spend), nil
}
