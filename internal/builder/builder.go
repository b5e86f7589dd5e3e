// Package builder implements the transaction construction engine: coin
// selection, ring assembly, confidential output construction, fee and
// change computation, and the build/sign split for view-only accounts.
package builder

import (
	"fmt"

	"github.com/umbra-tech/umbra-wallet/config"
	"github.com/umbra-tech/umbra-wallet/internal/ledger"
	"github.com/umbra-tech/umbra-wallet/internal/log"
	"github.com/umbra-tech/umbra-wallet/internal/walletdb"
	"github.com/umbra-tech/umbra-wallet/pkg/keys"
	"github.com/umbra-tech/umbra-wallet/pkg/tx"
	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// MemoKind selects which memo scheme outputs carry. A closed set; memo
// choice never affects coin selection or fees.
type MemoKind int

const (
	// MemoNone writes an unused (all-zero) memo.
	MemoNone MemoKind = iota

	// MemoSender writes an authenticated sender memo the recipient can
	// verify against the sender's address.
	MemoSender

	// MemoBurnRedemption tags the payment with 32 bytes of redemption
	// data for burn/bridge flows.
	MemoBurnRedemption
)

// Builder accumulates the pieces of one transaction and assembles them.
// It is single-use: build once, then discard.
type Builder struct {
	store  *walletdb.Store
	ledger ledger.Ledger
	acct   *walletdb.Account

	minimumFees      map[types.TokenID]uint64
	tombstoneHorizon uint64
	ringSize         int
	maxInputs        int

	outlays         []Outlay
	inputIDs        []types.TxoID
	maxSpendable    uint64
	feeValue        *uint64
	feeToken        *types.TokenID
	allowMixedFee   bool
	tombstone       uint64
	memoKind        MemoKind
	redemptionData  [32]byte
	singleRecipient bool
}

// New creates a builder for the given account. Protocol constants come
// from the network defaults.
func New(store *walletdb.Store, ldg ledger.Ledger, accountID types.AccountID) (*Builder, error) {
	acct, err := store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	return &Builder{
		store:            store,
		ledger:           ldg,
		acct:             acct,
		minimumFees:      config.MinimumFees(),
		tombstoneHorizon: config.DefaultTombstoneHorizon,
		ringSize:         config.RingSize,
		maxInputs:        config.MaxInputs,
	}, nil
}

// AddRecipient adds one (recipient, amount) outlay.
func (b *Builder) AddRecipient(recipient *keys.PublicAddress, amount types.Amount) {
	b.outlays = append(b.outlays, Outlay{Recipient: recipient, Amount: amount})
}

// SetInputTxos bypasses coin selection and spends exactly these txos.
func (b *Builder) SetInputTxos(ids []types.TxoID) {
	b.inputIDs = ids
}

// SetMaxSpendable excludes txos above the given value from selection.
func (b *Builder) SetMaxSpendable(v uint64) {
	b.maxSpendable = v
}

// SetFee overrides the network default fee.
func (b *Builder) SetFee(value uint64) {
	b.feeValue = &value
}

// SetFeeToken pays the fee in a different token than the spend token.
// Requires AllowMixedTokenFee.
func (b *Builder) SetFeeToken(token types.TokenID) {
	b.feeToken = &token
}

// AllowMixedTokenFee opts in to paying the fee in a token other than the
// one being spent.
func (b *Builder) AllowMixedTokenFee() {
	b.allowMixedFee = true
}

// SetTombstone sets the block past which the transaction expires.
// Zero means "pick the default horizon past the current tip".
func (b *Builder) SetTombstone(block uint64) {
	b.tombstone = block
}

// SetTombstoneHorizon overrides the default tombstone horizon used when
// no explicit tombstone is set.
func (b *Builder) SetTombstoneHorizon(blocks uint64) {
	b.tombstoneHorizon = blocks
}

// SetMemoKind selects the memo scheme.
func (b *Builder) SetMemoKind(kind MemoKind) {
	b.memoKind = kind
}

// SetRedemptionData sets the burn-redemption payload. Only meaningful
// with MemoBurnRedemption.
func (b *Builder) SetRedemptionData(data [32]byte) {
	b.redemptionData = data
}

// RequireSingleRecipient rejects proposals with more than one outlay.
func (b *Builder) RequireSingleRecipient() {
	b.singleRecipient = true
}

// spendToken returns the single token all outlays use.
func (b *Builder) spendToken() (types.TokenID, error) {
	if len(b.outlays) == 0 {
		return 0, ErrNoOutlays
	}
	if b.singleRecipient && len(b.outlays) > 1 {
		return 0, ErrMultipleRecipients
	}
	token := b.outlays[0].Amount.TokenID
	for _, o := range b.outlays[1:] {
		if o.Amount.TokenID != token {
			return 0, ErrMixedOutlayTokens
		}
	}
	return token, nil
}

// resolveFee applies explicit override -> network default -> error, and
// enforces the mixed-token opt-in and the consensus minimum.
func (b *Builder) resolveFee(spendToken types.TokenID) (types.Amount, error) {
	feeToken := spendToken
	if b.feeToken != nil {
		feeToken = *b.feeToken
	}
	if feeToken != spendToken && !b.allowMixedFee {
		return types.Amount{}, ErrMixedTokenFee
	}

	minimum, hasMinimum := b.minimumFees[feeToken]
	if b.feeValue != nil {
		if hasMinimum && *b.feeValue < minimum {
			return types.Amount{}, fmt.Errorf("%w: %d < %d for token %d", ErrFeeBelowMinimum, *b.feeValue, minimum, feeToken)
		}
		return types.NewAmount(*b.feeValue, feeToken), nil
	}
	if !hasMinimum {
		return types.Amount{}, fmt.Errorf("%w: token %d", ErrFeeUnavailable, feeToken)
	}
	return types.NewAmount(minimum, feeToken), nil
}

// resolveTombstone applies the default horizon when none was supplied.
func (b *Builder) resolveTombstone() (uint64, error) {
	if b.tombstone != 0 {
		return b.tombstone, nil
	}
	numBlocks, err := b.ledger.NumBlocks()
	if err != nil {
		return 0, fmt.Errorf("ledger height: %w", err)
	}
	return numBlocks + b.tombstoneHorizon, nil
}

// gatherInputs returns the txos the transaction will spend: either the
// caller's explicit list (validated) or a greedy selection per token.
func (b *Builder) gatherInputs(spendToken types.TokenID, outlayTotal uint64, fee types.Amount) ([]*walletdb.Txo, error) {
	if len(b.inputIDs) > 0 {
		return b.loadExplicitInputs()
	}

	target := outlayTotal
	if fee.TokenID == spendToken {
		target += fee.Value
	}
	selected, err := b.store.SelectUnspentTxosForValue(b.acct.ID, spendToken, target, b.maxSpendable, b.maxInputs)
	if err != nil {
		return nil, err
	}

	if fee.TokenID != spendToken {
		remaining := b.maxInputs - len(selected)
		if remaining <= 0 {
			return nil, walletdb.ErrInsufficientFundsFragmented
		}
		feeInputs, err := b.store.SelectUnspentTxosForValue(b.acct.ID, fee.TokenID, fee.Value, b.maxSpendable, remaining)
		if err != nil {
			return nil, err
		}
		selected = append(selected, feeInputs...)
	}
	return selected, nil
}

// loadExplicitInputs loads caller-supplied input txos and checks each is
// owned by the account and spendable.
func (b *Builder) loadExplicitInputs() ([]*walletdb.Txo, error) {
	txos := make([]*walletdb.Txo, 0, len(b.inputIDs))
	for _, id := range b.inputIDs {
		txo, err := b.store.GetTxo(id)
		if err != nil {
			return nil, err
		}
		if txo.AccountID != b.acct.ID {
			return nil, fmt.Errorf("%w: %s", ErrTxoNotOwned, id)
		}
		if txo.Status() != walletdb.TxoUnspent {
			return nil, fmt.Errorf("%w: %s is %s", ErrTxoNotSpendable, id, txo.Status())
		}
		txos = append(txos, txo)
	}
	return txos, nil
}

// memoBuilder maps the selected memo kind to its implementation.
func (b *Builder) memoBuilder() (tx.MemoBuilder, error) {
	switch b.memoKind {
	case MemoNone:
		return nil, nil
	case MemoSender:
		viewKey, err := b.acct.ViewKey()
		if err != nil {
			return nil, err
		}
		return &tx.AuthenticatedSenderMemoBuilder{
			Sender: viewKey.Subaddress(b.acct.MainSubaddress),
		}, nil
	case MemoBurnRedemption:
		return &tx.BurnRedemptionMemoBuilder{RedemptionData: b.redemptionData}, nil
	default:
		return nil, fmt.Errorf("unknown memo kind %d", b.memoKind)
	}
}

// BuildUnsigned assembles everything except signatures: selection, rings,
// membership proofs, outputs, change, fee, and tombstone. Output
// construction needs only public keys, so this path works for view-only
// accounts.
func (b *Builder) BuildUnsigned() (*UnsignedTxProposal, error) {
	spendToken, err := b.spendToken()
	if err != nil {
		return nil, err
	}
	fee, err := b.resolveFee(spendToken)
	if err != nil {
		return nil, err
	}
	tombstone, err := b.resolveTombstone()
	if err != nil {
		return nil, err
	}

	var outlayTotal uint64
	for _, o := range b.outlays {
		outlayTotal += o.Amount.Value
	}

	inputs, err := b.gatherInputs(spendToken, outlayTotal, fee)
	if err != nil {
		return nil, err
	}

	// Per-token input sums, and the change each token is owed.
	inputTotals := make(map[types.TokenID]uint64)
	for _, txo := range inputs {
		inputTotals[txo.TokenID] += txo.Value
	}
	needed := map[types.TokenID]uint64{spendToken: outlayTotal}
	needed[fee.TokenID] += fee.Value
	change := make(map[types.TokenID]uint64)
	for token, have := range inputTotals {
		want := needed[token]
		if have < want {
			return nil, fmt.Errorf("%w: token %d has %d, needs %d", ErrNegativeChange, token, have, want)
		}
		change[token] = have - want
	}
	for token, want := range needed {
		if want > 0 && inputTotals[token] < want {
			return nil, fmt.Errorf("%w: token %d has %d, needs %d", ErrNegativeChange, token, inputTotals[token], want)
		}
	}

	// Payload outputs.
	memoBuilder, err := b.memoBuilder()
	if err != nil {
		return nil, err
	}
	viewKey, err := b.acct.ViewKey()
	if err != nil {
		return nil, err
	}

	var outs []tx.TxOut
	var blindings [][]byte
	var payload, changeOuts []OutputTxo
	appendOutput := func(built *tx.BuiltTxOut, recipient *keys.PublicAddress, amount types.Amount) {
		outs = append(outs, *built.TxOut)
		blindings = append(blindings, built.Blinding.Bytes())
		record := OutputTxo{
			TxOut:        *built.TxOut,
			Recipient:    recipient,
			Confirmation: built.Confirmation,
			Value:        amount.Value,
			TokenID:      amount.TokenID,
		}
		if recipient != nil {
			payload = append(payload, record)
		} else {
			changeOuts = append(changeOuts, record)
		}
	}

	for _, o := range b.outlays {
		built, err := tx.NewTxOut(o.Amount, o.Recipient, memoBuilder)
		if err != nil {
			return nil, fmt.Errorf("build output: %w", err)
		}
		appendOutput(built, o.Recipient, o.Amount)
	}

	// One change output per token with nonzero change, to the account's
	// change subaddress. Zero change is elided.
	changeAddr := viewKey.Subaddress(b.acct.ChangeSubaddress)
	for token, v := range change {
		if v == 0 {
			continue
		}
		built, err := tx.NewTxOut(types.NewAmount(v, token), changeAddr, nil)
		if err != nil {
			return nil, fmt.Errorf("build change output: %w", err)
		}
		appendOutput(built, nil, types.NewAmount(v, token))
	}

	// Rings. Locate every real input in the ledger first so decoy
	// sampling can exclude all of them.
	realIndexes := make([]uint64, len(inputs))
	exclude := make(map[uint64]struct{}, len(inputs))
	for i, txo := range inputs {
		idx, err := b.ledger.GetTxOutIndexByPublicKey(txo.TxOut.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("locate input %s in ledger: %w", txo.ID, err)
		}
		realIndexes[i] = idx
		exclude[idx] = struct{}{}
	}

	sampler := &ringSampler{ledger: b.ledger, size: b.ringSize}
	txIns := make([]tx.TxIn, len(inputs))
	inputMeta := make([]UnsignedInput, len(inputs))
	for i, txo := range inputs {
		ring, proofs, realPos, err := sampler.sampleRing(realIndexes[i], exclude)
		if err != nil {
			return nil, err
		}
		txIns[i] = tx.TxIn{Ring: ring, Proofs: proofs}
		if txo.SubaddressIndex == nil {
			return nil, fmt.Errorf("%w: %s is orphaned", ErrTxoNotSpendable, txo.ID)
		}
		inputMeta[i] = UnsignedInput{
			TxoID:           txo.ID,
			RealIndex:       realPos,
			SubaddressIndex: *txo.SubaddressIndex,
			Value:           txo.Value,
			TokenID:         txo.TokenID,
		}
	}

	log.Builder.Debug().
		Stringer("account", b.acct.ID).
		Int("inputs", len(inputs)).
		Int("outputs", len(outs)).
		Uint64("fee", fee.Value).
		Uint64("tombstone", tombstone).
		Msg("assembled unsigned transaction")

	return &UnsignedTxProposal{
		Prefix: tx.TxPrefix{
			Inputs:         txIns,
			Outputs:        outs,
			Fee:            fee,
			TombstoneBlock: tombstone,
		},
		Inputs:          inputMeta,
		OutputBlindings: blindings,
		PayloadTxos:     payload,
		ChangeTxos:      changeOuts,
	}, nil
}

// Build assembles and signs in one step. Requires the spend key locally.
func (b *Builder) Build() (*TxProposal, error) {
	if b.acct.ViewOnly {
		return nil, ErrViewOnlyAccount
	}
	key, err := b.acct.Key()
	if err != nil {
		return nil, err
	}
	unsigned, err := b.BuildUnsigned()
	if err != nil {
		return nil, err
	}
	return Sign(unsigned, key)
}
