package helpers

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Request/Response DTOs. Money travels as decimal strings or JSON numbers
// and is never converted to float.
type CreateAuctionRequest struct {
	Title           string              `json:"title" binding:"required"`
	Description     string              `json:"description"`
	StartingPrice   decimal.Decimal     `json:"starting_price"`
	BidIncrement    decimal.Decimal     `json:"bid_increment"`
	BuyNowPrice     decimal.NullDecimal `json:"buy_now_price"`
	StartTime       time.Time           `json:"start_time"`
	EndTime         time.Time           `json:"end_time"`
	AutoExtend      bool                `json:"auto_extend"`
	ExtendThreshold string              `json:"extend_threshold"`
	ExtendDuration  string              `json:"extend_duration"`
}

// ToModel converts the request, parsing durations such as "5m"
func (r CreateAuctionRequest) ToModel() (model.AuctionRequest, error) {
	threshold, err := parseDuration(r.ExtendThreshold)
	if err != nil {
		return model.AuctionRequest{}, fmt.Errorf("%w - extend_threshold: %v", biddingerrors.ErrInvalidAuction, err)
	}
	duration, err := parseDuration(r.ExtendDuration)
	if err != nil {
		return model.AuctionRequest{}, fmt.Errorf("%w - extend_duration: %v", biddingerrors.ErrInvalidAuction, err)
	}

	return model.AuctionRequest{
		Title:           r.Title,
		Description:     r.Description,
		StartingPrice:   r.StartingPrice,
		BidIncrement:    r.BidIncrement,
		BuyNowPrice:     r.BuyNowPrice,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		AutoExtend:      r.AutoExtend,
		ExtendThreshold: threshold,
		ExtendDuration:  duration,
	}, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

type PlaceBidRequest struct {
	Amount    decimal.Decimal     `json:"amount"`
	MaxAmount decimal.NullDecimal `json:"max_amount"`
	Kind      string              `json:"kind" binding:"omitempty,oneof=manual proxy"`
}

// ToModel defaults the kind to proxy when a max amount is given
func (r PlaceBidRequest) ToModel() model.BidRequest {
	kind := model.BidKind(r.Kind)
	if kind == "" {
		kind = model.BidManual
		if r.MaxAmount.Valid {
			kind = model.BidProxy
		}
	}
	return model.BidRequest{Amount: r.Amount, MaxAmount: r.MaxAmount, Kind: kind}
}

type RejectBidderRequest struct {
	BidderID string `json:"bidder_id" binding:"required"`
	Reason   string `json:"reason"`
}

type AuctionResponse struct {
	AuctionID       string   `json:"auction_id"`
	SellerID        string   `json:"seller_id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Status          string   `json:"status"`
	StartingPrice   string   `json:"starting_price"`
	CurrentPrice    string   `json:"current_price"`
	MinimumNextBid  string   `json:"minimum_next_bid"`
	BidIncrement    string   `json:"bid_increment"`
	BuyNowPrice     *string  `json:"buy_now_price,omitempty"`
	HighestBidderID string   `json:"highest_bidder_id,omitempty"`
	BidCount        int      `json:"bid_count"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	AutoExtend      bool     `json:"auto_extend"`
	ExtendThreshold string   `json:"extend_threshold"`
	ExtendDuration  string   `json:"extend_duration"`
	RejectedBidders []string `json:"rejected_bidders"`
	Version         int64    `json:"version"`
}

type BidResponse struct {
	BidID           string  `json:"bid_id"`
	AuctionID       string  `json:"auction_id"`
	BidderID        string  `json:"bidder_id"`
	Kind            string  `json:"kind"`
	Amount          string  `json:"amount"`
	OfferedAmount   string  `json:"offered_amount"`
	MaxAmount       *string `json:"max_amount,omitempty"`
	Winning         bool    `json:"winning"`
	Rejected        bool    `json:"rejected"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
	Seq             uint64  `json:"seq"`
	CreatedAt       string  `json:"created_at"`
}

type PlaceBidResponse struct {
	Bid     BidResponse     `json:"bid"`
	Auction AuctionResponse `json:"auction"`
	Outbid  []string        `json:"outbid_bidders"`
}

func NewAuctionResponse(a model.Auction) AuctionResponse {
	resp := AuctionResponse{
		AuctionID:       a.ID,
		SellerID:        a.SellerID,
		Title:           a.Title,
		Description:     a.Description,
		Status:          string(a.Status),
		StartingPrice:   a.StartingPrice.String(),
		CurrentPrice:    a.CurrentPrice.String(),
		MinimumNextBid:  a.MinimumNextBid().String(),
		BidIncrement:    a.BidIncrement.String(),
		HighestBidderID: a.HighestBidderID,
		BidCount:        a.BidCount,
		StartTime:       a.StartTime.UTC().Format(time.RFC3339),
		EndTime:         a.EndTime.UTC().Format(time.RFC3339),
		AutoExtend:      a.AutoExtend,
		ExtendThreshold: a.ExtendThreshold.String(),
		ExtendDuration:  a.ExtendDuration.String(),
		RejectedBidders: a.RejectedBidders,
		Version:         a.Version,
	}
	if a.BuyNowPrice.Valid {
		resp.BuyNowPrice = lo.ToPtr(a.BuyNowPrice.Decimal.String())
	}
	if resp.RejectedBidders == nil {
		resp.RejectedBidders = []string{}
	}
	return resp
}

func NewBidResponse(b model.Bid) BidResponse {
	resp := BidResponse{
		BidID:           b.BidID,
		AuctionID:       b.AuctionID,
		BidderID:        b.BidderID,
		Kind:            string(b.Kind),
		Amount:          b.Amount.String(),
		OfferedAmount:   b.OfferedAmount.String(),
		Winning:         b.Winning,
		Rejected:        b.Rejected,
		RejectionReason: b.RejectionReason,
		Seq:             b.Seq,
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.MaxAmount.Valid {
		resp.MaxAmount = lo.ToPtr(b.MaxAmount.Decimal.String())
	}
	return resp
}

func NewAuctionResponses(auctions []model.Auction) []AuctionResponse {
	return lo.Map(auctions, func(a model.Auction, _ int) AuctionResponse { return NewAuctionResponse(a) })
}

func NewBidResponses(bids []model.Bid) []BidResponse {
	return lo.Map(bids, func(b model.Bid, _ int) BidResponse { return NewBidResponse(b) })
}

func NewPlaceBidResponse(r model.BidResult) PlaceBidResponse {
	return PlaceBidResponse{
		Bid:     NewBidResponse(r.Bid),
		Auction: NewAuctionResponse(r.Auction),
		Outbid:  lo.Uniq(lo.Map(r.Outbid, func(b model.Bid, _ int) string { return b.BidderID })),
	}
}
