package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	StatusDraft     AuctionStatus = "draft"
	StatusActive    AuctionStatus = "active"
	StatusEnded     AuctionStatus = "ended"
	StatusCancelled AuctionStatus = "cancelled"
)

// BidKind distinguishes fixed-amount bids from proxy bids
type BidKind string

const (
	BidManual BidKind = "manual"
	BidProxy  BidKind = "proxy"
)

// Auction is the aggregate root for bidding on a single lot
type Auction struct {
	ID              string              `json:"auction_id"`
	SellerID        string              `json:"seller_id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	StartingPrice   decimal.Decimal     `json:"starting_price"`
	CurrentPrice    decimal.Decimal     `json:"current_price"`
	BidIncrement    decimal.Decimal     `json:"bid_increment"`
	BuyNowPrice     decimal.NullDecimal `json:"buy_now_price"`
	StartTime       time.Time           `json:"start_time"`
	EndTime         time.Time           `json:"end_time"`
	AutoExtend      bool                `json:"auto_extend"`
	ExtendThreshold time.Duration       `json:"extend_threshold"`
	ExtendDuration  time.Duration       `json:"extend_duration"`
	Status          AuctionStatus       `json:"status"`
	HighestBidderID string              `json:"highest_bidder_id,omitempty"`
	BidCount        int                 `json:"bid_count"`
	RejectedBidders []string            `json:"rejected_bidders,omitempty"`
	NextSeq         uint64              `json:"-"`
	Version         int64               `json:"version"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// MinimumNextBid returns the lowest amount the next bid may state
func (a Auction) MinimumNextBid() decimal.Decimal {
	if a.CurrentPrice.IsZero() {
		return a.StartingPrice
	}
	return a.CurrentPrice.Add(a.BidIncrement)
}

// HasBuyNow reports whether a positive buy-now price is set
func (a Auction) HasBuyNow() bool {
	return a.BuyNowPrice.Valid && a.BuyNowPrice.Decimal.IsPositive()
}

// IsRejectedBidder reports whether the seller has barred the bidder from this auction
func (a Auction) IsRejectedBidder(bidderID string) bool {
	for _, id := range a.RejectedBidders {
		if id == bidderID {
			return true
		}
	}
	return false
}

// Bid represents one bidder's offer on an auction. For proxy bids Amount is
// the current standing bid and is escalated in place up to MaxAmount.
type Bid struct {
	BidID           string              `json:"bid_id"`
	AuctionID       string              `json:"auction_id"`
	BidderID        string              `json:"bidder_id"`
	Amount          decimal.Decimal     `json:"amount"`
	OfferedAmount   decimal.Decimal     `json:"offered_amount"` // amount as submitted; Amount moves for proxies
	MaxAmount       decimal.NullDecimal `json:"max_amount"`
	Kind            BidKind             `json:"kind"`
	Winning         bool                `json:"winning"`
	Rejected        bool                `json:"rejected"`
	RejectionReason string              `json:"rejection_reason,omitempty"`
	RejectedAt      *time.Time          `json:"rejected_at,omitempty"`
	Seq             uint64              `json:"seq"`
	CreatedAt       time.Time           `json:"created_at"`
}

// Ceiling is the most this bid could ever reach
func (b Bid) Ceiling() decimal.Decimal {
	if b.Kind == BidProxy && b.MaxAmount.Valid {
		return b.MaxAmount.Decimal
	}
	return b.Amount
}

// IsProxy reports whether the bid escalates automatically
func (b Bid) IsProxy() bool {
	return b.Kind == BidProxy
}

// AuctionRequest holds the seller-supplied fields of a new auction
type AuctionRequest struct {
	Title           string
	Description     string
	StartingPrice   decimal.Decimal
	BidIncrement    decimal.Decimal
	BuyNowPrice     decimal.NullDecimal
	StartTime       time.Time
	EndTime         time.Time
	AutoExtend      bool
	ExtendThreshold time.Duration
	ExtendDuration  time.Duration
}

// BidRequest is an unvalidated bid as submitted by a bidder
type BidRequest struct {
	Amount    decimal.Decimal
	MaxAmount decimal.NullDecimal
	Kind      BidKind
}

// AuctionSnapshot is the full bidding state of one auction. Bids are ordered by Seq.
type AuctionSnapshot struct {
	Auction Auction `json:"auction"`
	Bids    []Bid   `json:"bids"`
}

// Clone returns a deep copy safe to mutate
func (s AuctionSnapshot) Clone() AuctionSnapshot {
	out := AuctionSnapshot{Auction: s.Auction}
	if s.Auction.RejectedBidders != nil {
		out.Auction.RejectedBidders = append([]string(nil), s.Auction.RejectedBidders...)
	}
	if s.Bids != nil {
		out.Bids = make([]Bid, len(s.Bids))
		copy(out.Bids, s.Bids)
		for i := range out.Bids {
			if t := out.Bids[i].RejectedAt; t != nil {
				at := *t
				out.Bids[i].RejectedAt = &at
			}
		}
	}
	return out
}

// WinningBid returns the bid currently holding the winning flag
func (s AuctionSnapshot) WinningBid() (Bid, bool) {
	for _, b := range s.Bids {
		if b.Winning {
			return b, true
		}
	}
	return Bid{}, false
}

// BidDelta is a bid created or changed by a single transition
type BidDelta struct {
	Bid     Bid  `json:"bid"`
	Created bool `json:"created"`
}

// EventType names a notification emitted after a committed transition
type EventType string

const (
	EventOutbid           EventType = "outbid"
	EventWon              EventType = "won"
	EventAuctionExtended  EventType = "auction_extended"
	EventAuctionClosed    EventType = "auction_closed"
	EventAuctionCancelled EventType = "auction_cancelled"
	EventBidderRejected   EventType = "bidder_rejected"
)

// Event is delivered to the notification collaborator after commit
type Event struct {
	Type       EventType       `json:"type"`
	AuctionID  string          `json:"auction_id"`
	BidderID   string          `json:"bidder_id,omitempty"`
	Price      decimal.Decimal `json:"price"`
	EndTime    time.Time       `json:"end_time"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// BidResult is returned to the caller after a bid has been committed
type BidResult struct {
	Bid     Bid     `json:"bid"`
	Outbid  []Bid   `json:"outbid"`
	Auction Auction `json:"auction"`
	Events  []Event `json:"-"`
}
