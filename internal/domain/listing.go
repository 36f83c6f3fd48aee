package domain

// Listing represents a fixed-price offering of fractional ownership.
// IsActive flips to false exactly once, at successful settlement.
type Listing struct {
	ListingID string
	TokenID   string
	SellerID  string
	Price     int64 // lamports

	// ProposedShares carries the seller's proposed revenue-share splits for
	// the token. Applied through the royalty service, not at settlement.
	ProposedShares []ShareInput

	IsActive  bool
	IsSold    bool
	CreatedAt int64 // unix ms
}

// Offer statuses.
const (
	OfferStatusPending   = "pending"
	OfferStatusAccepted  = "accepted"
	OfferStatusRejected  = "rejected"
	OfferStatusCountered = "countered"
	OfferStatusExpired   = "expired"
)

// Offer represents a buyer's bid on a listing.
// State machine: pending -> accepted | rejected | countered | expired.
// A countered offer stays inert until a fresh offer is placed.
type Offer struct {
	OfferID   string
	ListingID string
	BuyerID   string
	Wallet    string
	Amount    int64 // lamports
	Status    string

	CounterAmount *int64 // lamports; set when countered
	ProofSig      string // on-chain payment proof signature, optional

	ExpiresAt int64 // unix ms
	CreatedAt int64 // unix ms
}

// Expired reports whether the offer is past its expiry at the given time.
func (o *Offer) Expired(nowMS int64) bool {
	return o.ExpiresAt > 0 && nowMS >= o.ExpiresAt
}

// Offer response types.
const (
	OfferResponseAccept  = "accept"
	OfferResponseReject  = "reject"
	OfferResponseCounter = "counter"
)

// OfferResponse records a seller's reply to an offer.
type OfferResponse struct {
	ResponseID    string
	OfferID       string
	ResponderID   string
	Type          string
	CounterAmount *int64
	Message       string
	CreatedAt     int64 // unix ms
}
