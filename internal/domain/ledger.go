package domain

// Ledger entry types.
const (
	LedgerEntryAccrual        = "ACCRUAL"
	LedgerEntryPayoutToEarner = "PAYOUT_TO_EARNER"
)

// Ledger beneficiary kinds.
const (
	BeneficiaryPlatform = "PLATFORM"
	BeneficiaryEarner   = "EARNER"
)

// FeeLedgerEntry is one row in the append-only fee accrual ledger. Entries
// are never updated or deleted; owed balances are always recomputed from the
// full history.
type FeeLedgerEntry struct {
	EntryID           string
	TokenID           string
	EntryType         string // ACCRUAL | PAYOUT_TO_EARNER
	BeneficiaryKind   string // PLATFORM | EARNER
	BeneficiaryWallet string
	Amount            int64  // lamports, always positive
	VersionID         string // agreement version; may be empty for legacy rows
	ExternalTxSig     string // on-chain signature for payouts
	CreatedAt         int64  // unix ms
}

// Payout statuses.
const (
	PayoutStatusPending   = "pending"
	PayoutStatusConfirmed = "confirmed"
	PayoutStatusFailed    = "failed"
)

// Payout failure reasons, recorded when a payout transfer does not confirm.
const (
	PayoutFailRateLimited         = "rate-limited"
	PayoutFailNetwork             = "network"
	PayoutFailInsufficientBalance = "insufficient-balance"
	PayoutFailOnChain             = "on-chain"
)

// Payout records one attempted transfer of an earner's owed balance. The row
// is written pending before the transfer is submitted so that every money
// movement attempt leaves a trace.
type Payout struct {
	PayoutID     string
	TokenID      string
	EarnerWallet string
	Amount       int64 // lamports
	TxSig        string
	Status       string
	FailReason   string
	CreatedAt    int64 // unix ms
}

// FeeSnapshot is one trading-fee observation, mirrored to the analytics
// store. It carries no accounting weight; the ledger remains authoritative.
type FeeSnapshot struct {
	TokenID      string
	PeriodID     string
	LifetimeFees int64 // lamports observed on chain
	Delta        int64 // lamports newly observed since the last pass
	ObservedAt   int64 // unix ms
}

// FeePeriod statuses.
const (
	FeePeriodOpen   = "open"
	FeePeriodClosed = "closed"
)

// FeePeriod tracks an open trading-fee window tied to a sale. The collection
// job accrues lifetime-fee deltas against it and closes it once the window
// has elapsed. LastRecordedFees only advances atomically with the accrual
// produced from its delta.
type FeePeriod struct {
	PeriodID         string
	SaleID           string
	TokenID          string
	LastRecordedFees int64 // lifetime lamports at last collection pass
	WindowStart      int64 // unix ms
	WindowEnd        int64 // unix ms
	Status           string
	CreatedAt        int64 // unix ms
}
