package domain

// Sale sources.
const (
	SaleSourceAuction = "auction"
	SaleSourceOffer   = "offer"
	SaleSourceDirect  = "direct"
)

// Sale statuses.
const (
	SaleStatusCompleted = "completed"
)

// Sale records a completed transfer of ownership for value.
// Invariant: PlatformFee + SellerAmount == SalePrice exactly.
type Sale struct {
	SaleID   string
	TokenID  string
	SellerID string
	BuyerID  string

	SalePrice    int64 // lamports
	PlatformFee  int64 // lamports, floor(price * bps / 10000)
	SellerAmount int64 // lamports, price - fee

	Source   string // auction | offer | direct
	SourceID string // auction or offer id
	Status   string

	AgreementVersionID string // royalty agreement version in force at settlement

	FeeCollected bool  // set by the revenue collection job
	CreatedAt    int64 // unix ms
}

// PlatformRevenue types.
const (
	RevenueTypeSaleFee  = "sale_fee"
	RevenueTypeTokenFee = "token_fee"
)

// PlatformRevenue statuses.
const (
	RevenueStatusPending   = "pending"
	RevenueStatusCollected = "collected"
)

// PlatformRevenue records value captured by the platform.
type PlatformRevenue struct {
	RevenueID   string
	RevenueType string // sale_fee | token_fee
	Amount      int64  // lamports
	SourceID    string // sale id or fee period id
	TokenID     string
	Status      string
	CreatedAt   int64 // unix ms
}
