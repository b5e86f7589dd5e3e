package builder

import "errors"

// Typed errors surfaced by transaction construction.
var (
	// ErrNoOutlays: nothing to send.
	ErrNoOutlays = errors.New("transaction has no outlays")

	// ErrMultipleRecipients: more than one outlay where the caller
	// required a single recipient.
	ErrMultipleRecipients = errors.New("multiple recipients not allowed")

	// ErrMixedOutlayTokens: outlays span more than one token. A
	// transaction spends exactly one token of value.
	ErrMixedOutlayTokens = errors.New("outlays must all use the same token")

	// ErrMixedTokenFee: the fee token differs from the spend token and
	// the caller did not explicitly opt in.
	ErrMixedTokenFee = errors.New("fee token differs from spend token; explicit opt-in required")

	// ErrFeeUnavailable: no explicit fee and no network default for the
	// fee token.
	ErrFeeUnavailable = errors.New("no fee available for token")

	// ErrFeeBelowMinimum: explicit fee under the consensus minimum.
	ErrFeeBelowMinimum = errors.New("fee below network minimum")

	// ErrNegativeChange: inputs do not cover outlays plus fee. Selection
	// should prevent this; seeing it means caller-supplied inputs were
	// short.
	ErrNegativeChange = errors.New("inputs do not cover outlays and fee")

	// ErrTxoNotOwned: a caller-supplied input belongs to another account.
	ErrTxoNotOwned = errors.New("input txo not owned by account")

	// ErrTxoNotSpendable: a caller-supplied input is spent, pending, or
	// orphaned.
	ErrTxoNotSpendable = errors.New("input txo not spendable")

	// ErrRingSample: the ledger has no outputs to build a ring from.
	ErrRingSample = errors.New("cannot sample ring members from empty ledger")

	// ErrMissingKeyImage: signing produced no key image for an input.
	ErrMissingKeyImage = errors.New("input missing key image")

	// ErrMissingConfirmation: an output lost its confirmation number on
	// reconstruction. Indicates a data integrity problem.
	ErrMissingConfirmation = errors.New("output missing confirmation number")

	// ErrViewOnlyAccount: a full build was requested for an account
	// whose spend key is not local.
	ErrViewOnlyAccount = errors.New("account is view-only; build unsigned and sign externally")
)
