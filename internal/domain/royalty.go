package domain

// TotalBps is the whole of a token's revenue expressed in basis points.
const TotalBps = 10000

// DefaultPlatformFeeBps applies when a token has no agreement version yet.
const DefaultPlatformFeeBps = 1000 // 10%

// RoyaltyAgreementVersion is one version of a token's revenue-share
// configuration. Exactly one version per token has EffectiveTo == nil
// (the open version) at all times.
type RoyaltyAgreementVersion struct {
	VersionID      string
	TokenID        string
	PlatformFeeBps int
	EffectiveFrom  int64  // unix ms
	EffectiveTo    *int64 // unix ms; nil means currently open
}

// Open reports whether this is the currently effective version.
func (v *RoyaltyAgreementVersion) Open() bool {
	return v.EffectiveTo == nil
}

// RoyaltyShare assigns a slice of revenue to an earner wallet under one
// agreement version. Invariant per version:
// sum(Bps) + version.PlatformFeeBps == TotalBps.
type RoyaltyShare struct {
	ShareID      string
	VersionID    string
	EarnerWallet string
	Bps          int
}

// ShareInput is the caller-supplied form of a share row.
type ShareInput struct {
	EarnerWallet string
	Bps          int
}

// AgreementChange is a human-readable entry in a token's royalty change
// history. Append-only.
type AgreementChange struct {
	ChangeID  string
	TokenID   string
	VersionID string
	ActorID   string
	Reason    string
	Summary   string
	CreatedAt int64 // unix ms
}

// TokenOwnership is the logical ownership pointer updated at settlement.
type TokenOwnership struct {
	TokenID   string
	OwnerID   string
	UpdatedAt int64 // unix ms
}
