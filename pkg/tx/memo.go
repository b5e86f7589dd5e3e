package tx

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"

	"github.com/umbra-tech/umbra-wallet/pkg/crypto"
	"github.com/umbra-tech/umbra-wallet/pkg/keys"
)

// MemoSize is the fixed memo payload size: 1 type byte + 65 data bytes.
const MemoSize = 66

// Memo type bytes. The set is closed: memo dispatch is over these
// constants, never over free-form tags.
const (
	MemoTypeUnused              byte = 0x00
	MemoTypeAuthenticatedSender byte = 0x01
	MemoTypeDestination         byte = 0x02
	MemoTypeBurnRedemption      byte = 0x03
)

// MemoPayload is a cleartext memo: payload[0] is the type byte.
type MemoPayload [MemoSize]byte

// EncryptedMemo is a memo payload XORed with a keystream derived from the
// txout shared secret.
type EncryptedMemo [MemoSize]byte

// memoStream expands the memo key into a keystream of MemoSize bytes.
func memoStream(key [32]byte) [MemoSize]byte {
	r := hkdf.New(func() hash.Hash { return blake3.New() }, key[:], nil, []byte("umbra.memo.stream"))
	var stream [MemoSize]byte
	// HKDF output here is deterministic and always fills the buffer.
	io.ReadFull(r, stream[:])
	return stream
}

// Encrypt XORs the payload with the memo keystream.
func (p MemoPayload) Encrypt(key [32]byte) EncryptedMemo {
	stream := memoStream(key)
	var out EncryptedMemo
	for i := range p {
		out[i] = p[i] ^ stream[i]
	}
	return out
}

// Decrypt XORs the memo back into cleartext.
func (m EncryptedMemo) Decrypt(key [32]byte) MemoPayload {
	stream := memoStream(key)
	var out MemoPayload
	for i := range m {
		out[i] = m[i] ^ stream[i]
	}
	return out
}

// MarshalJSON encodes the memo as a hex string.
func (m EncryptedMemo) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(m[:]))
}

// UnmarshalJSON decodes a hex string into a memo.
func (m *EncryptedMemo) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*m = EncryptedMemo{}
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid memo hex: %w", err)
	}
	if len(decoded) != MemoSize {
		return fmt.Errorf("memo must be %d bytes, got %d", MemoSize, len(decoded))
	}
	copy(m[:], decoded)
	return nil
}

// MemoBuilder produces memo payloads for constructed outputs. Memo choice
// has no effect on coin selection or fees.
type MemoBuilder interface {
	// BuildMemo returns the cleartext memo for an output to recipient.
	BuildMemo(recipient *keys.PublicAddress) (MemoPayload, error)
}

// AuthenticatedSenderMemoBuilder writes recoverable-transaction-history
// memos: a hash of the sender's address authenticated under the per-output
// memo position, so the recipient can identify who paid them.
type AuthenticatedSenderMemoBuilder struct {
	// Sender is the address the memo identifies, normally the account's
	// main subaddress.
	Sender *keys.PublicAddress
}

// BuildMemo writes the sender address hash into the memo. The recipient
// verifies it by recomputing the hash from a known address book entry.
func (b *AuthenticatedSenderMemoBuilder) BuildMemo(recipient *keys.PublicAddress) (MemoPayload, error) {
	if b.Sender == nil {
		return MemoPayload{}, fmt.Errorf("authenticated sender memo requires a sender address")
	}
	digest := crypto.HashParts("umbra.memo.sender", b.Sender.Bytes(), recipient.Bytes())
	var p MemoPayload
	p[0] = MemoTypeAuthenticatedSender
	copy(p[1:33], digest[:])
	return p, nil
}

// ValidateSenderMemo checks a decrypted authenticated-sender memo against
// a candidate sender address.
func ValidateSenderMemo(p MemoPayload, sender, recipient *keys.PublicAddress) bool {
	if p[0] != MemoTypeAuthenticatedSender {
		return false
	}
	digest := crypto.HashParts("umbra.memo.sender", sender.Bytes(), recipient.Bytes())
	return bytes.Equal(p[1:33], digest[:])
}

// BurnRedemptionMemoBuilder writes burn-redemption memos carrying opaque
// redemption data, used when burning tokens for redemption on another
// system.
type BurnRedemptionMemoBuilder struct {
	RedemptionData [32]byte
}

// BuildMemo writes the redemption data into the memo.
func (b *BurnRedemptionMemoBuilder) BuildMemo(_ *keys.PublicAddress) (MemoPayload, error) {
	var p MemoPayload
	p[0] = MemoTypeBurnRedemption
	copy(p[1:33], b.RedemptionData[:])
	return p, nil
}
