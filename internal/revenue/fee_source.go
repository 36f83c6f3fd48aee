package revenue

import (
	"context"

	"solana-fraction-market/internal/solana"
)

// ChainFeeSource reads a token's lifetime trading fees as the lamport balance
// of its on-chain fee vault. Fee vaults only ever receive, so the balance is
// monotonic and usable as a lifetime counter.
type ChainFeeSource struct {
	chain    solana.Client
	vaultFor func(tokenID string) string
}

// NewChainFeeSource creates a fee source. vaultFor maps a token id to its fee
// vault address; nil means the token id is the vault address.
func NewChainFeeSource(chain solana.Client, vaultFor func(tokenID string) string) *ChainFeeSource {
	if vaultFor == nil {
		vaultFor = func(tokenID string) string { return tokenID }
	}
	return &ChainFeeSource{chain: chain, vaultFor: vaultFor}
}

// Compile-time interface check.
var _ FeeSource = (*ChainFeeSource)(nil)

// LifetimeFees returns the vault balance for the token.
func (s *ChainFeeSource) LifetimeFees(ctx context.Context, tokenID string) (int64, error) {
	return s.chain.GetBalance(ctx, s.vaultFor(tokenID))
}
