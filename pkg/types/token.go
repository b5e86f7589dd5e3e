package types

import "fmt"

// TokenID identifies a token type on the chain. The native token is 0.
type TokenID uint64

// TokenNative is the chain's native token.
const TokenNative TokenID = 0

// Amount pairs a value with the token it is denominated in.
type Amount struct {
	Value   uint64  `json:"value"`
	TokenID TokenID `json:"token_id"`
}

// NewAmount creates an Amount.
func NewAmount(value uint64, tokenID TokenID) Amount {
	return Amount{Value: value, TokenID: tokenID}
}

// String returns a human-readable representation, e.g. "100/token:0".
func (a Amount) String() string {
	return fmt.Sprintf("%d/token:%d", a.Value, a.TokenID)
}
