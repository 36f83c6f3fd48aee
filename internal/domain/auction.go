package domain

// Auction statuses. An auction is terminal once swept.
const (
	AuctionStatusActive     = "active"
	AuctionStatusSold       = "sold"
	AuctionStatusEnded      = "ended"
	AuctionStatusEndedNoRes = "ended_no_reserve"
)

// Auction represents a timed auction over fractional ownership of a token.
// The (CurrentBid, CurrentBidder, Status) triple is only ever mutated through
// conditional storage updates keyed on the previous values.
type Auction struct {
	AuctionID string
	TokenID   string
	SellerID  string

	StartingBid   int64  // lamports
	CurrentBid    int64  // lamports; 0 until the first accepted bid
	CurrentBidder string // user id; empty until the first accepted bid
	ReservePrice  *int64 // lamports; nil means no reserve

	Status string

	AuctionStart int64 // unix ms
	AuctionEnd   int64 // unix ms

	WinnerID   string // set when swept as sold
	WinningBid int64  // lamports; set when swept as sold

	CreatedAt int64 // unix ms
}

// IsTerminal reports whether the auction has been swept.
func (a *Auction) IsTerminal() bool {
	return a.Status != AuctionStatusActive
}

// ReserveMet reports whether the current bid satisfies the reserve price.
// An auction without a reserve is always met once a bid exists.
func (a *Auction) ReserveMet() bool {
	if a.CurrentBidder == "" {
		return false
	}
	if a.ReservePrice == nil {
		return true
	}
	return a.CurrentBid >= *a.ReservePrice
}

// Bid statuses.
const (
	BidStatusActive   = "active"
	BidStatusOutbid   = "outbid"
	BidStatusWon      = "won"
	BidStatusRefunded = "refunded"
	BidStatusEnded    = "ended"
)

// Bid represents a single accepted bid. At most one bid per auction holds
// status active at any time.
type Bid struct {
	BidID     string
	AuctionID string
	BidderID  string
	Wallet    string // bidder's wallet address
	Amount    int64  // lamports
	Status    string
	ProofSig  string // on-chain payment proof signature, optional
	CreatedAt int64  // unix ms
}

// Refund statuses.
const (
	RefundStatusQueued    = "queued"
	RefundStatusSubmitted = "submitted"
	RefundStatusConfirmed = "confirmed"
	RefundStatusFailed    = "failed"
)

// Refund is the obligation to return a displaced bidder's funds. Created when
// a bid is outbid or an auction ends without converting the bid into a sale.
type Refund struct {
	RefundID  string
	AuctionID string
	BidID     string
	BidderID  string
	Wallet    string
	Amount    int64 // lamports
	Status    string
	TxSig     string
	CreatedAt int64 // unix ms
}
