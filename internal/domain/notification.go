package domain

// Notification event types emitted by the engines. Delivery is an external
// concern; the engine only publishes.
const (
	NotifyNewBid         = "new_bid"
	NotifyOutbid         = "outbid"
	NotifyAuctionWon     = "auction_won"
	NotifyAuctionEnded   = "auction_ended"
	NotifyOfferReceived  = "offer_received"
	NotifyOfferAccepted  = "offer_accepted"
	NotifyOfferRejected  = "offer_rejected"
	NotifyOfferCountered = "offer_countered"
	NotifySaleSettled    = "sale_settled"
	NotifyPayoutSent     = "payout_sent"
)

// Notification is a fire-and-forget outbound event. Failures to dispatch can
// never affect settlement correctness.
type Notification struct {
	Type        string
	RecipientID string
	TokenID     string
	EntityID    string // auction, offer, sale, or payout id
	Amount      int64  // lamports, when meaningful
	CreatedAt   int64  // unix ms
}
