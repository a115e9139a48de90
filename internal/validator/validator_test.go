package validator

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func auctionAt(price int64) model.Auction {
	return model.Auction{
		ID:              "auction1",
		SellerID:        "seller",
		StartingPrice:   decimal.NewFromInt(10),
		CurrentPrice:    decimal.NewFromInt(price),
		BidIncrement:    decimal.NewFromInt(5),
		StartTime:       now.Add(-time.Hour),
		EndTime:         now.Add(time.Hour),
		Status:          model.StatusActive,
		RejectedBidders: []string{"banned"},
	}
}

func manualReq(amount int64) model.BidRequest {
	return model.BidRequest{Amount: decimal.NewFromInt(amount), Kind: model.BidManual}
}

func proxyReq(amount, max int64) model.BidRequest {
	return model.BidRequest{
		Amount:    decimal.NewFromInt(amount),
		MaxAmount: decimal.NewNullDecimal(decimal.NewFromInt(max)),
		Kind:      model.BidProxy,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	ended := auctionAt(50)
	ended.Status = model.StatusEnded

	notStarted := auctionAt(0)
	notStarted.StartTime = now.Add(time.Minute)

	expired := auctionAt(50)
	expired.EndTime = now.Add(-time.Second)

	atClose := auctionAt(50)
	atClose.EndTime = now

	tests := []struct {
		name       string
		auction    model.Auction
		bidderID   string
		req        model.BidRequest
		wantErr    error
		wantReason biddingerrors.RejectionReason
	}{
		{name: "first_bid_at_starting_price", auction: auctionAt(0), bidderID: "user1", req: manualReq(10)},
		{name: "first_bid_below_starting_price", auction: auctionAt(0), bidderID: "user1", req: manualReq(9), wantErr: biddingerrors.ErrBidTooLow, wantReason: biddingerrors.ReasonBelowMinimum},
		{name: "exact_minimum_next_bid", auction: auctionAt(50), bidderID: "user1", req: manualReq(55)},
		{name: "one_below_minimum_next_bid", auction: auctionAt(50), bidderID: "user1", req: manualReq(54), wantErr: biddingerrors.ErrBidTooLow, wantReason: biddingerrors.ReasonBelowMinimum},
		{name: "zero_amount", auction: auctionAt(50), bidderID: "user1", req: manualReq(0), wantErr: biddingerrors.ErrValidationRejected, wantReason: biddingerrors.ReasonAmountNotPositive},
		{name: "negative_amount", auction: auctionAt(50), bidderID: "user1", req: manualReq(-5), wantErr: biddingerrors.ErrValidationRejected, wantReason: biddingerrors.ReasonAmountNotPositive},
		{name: "valid_proxy", auction: auctionAt(50), bidderID: "user1", req: proxyReq(55, 200)},
		{name: "proxy_max_equal_amount", auction: auctionAt(50), bidderID: "user1", req: proxyReq(55, 55)},
		{name: "proxy_max_below_amount", auction: auctionAt(50), bidderID: "user1", req: proxyReq(60, 58), wantErr: biddingerrors.ErrValidationRejected, wantReason: biddingerrors.ReasonMaxBelowAmount},
		{
			name:       "proxy_without_max",
			auction:    auctionAt(50),
			bidderID:   "user1",
			req:        model.BidRequest{Amount: decimal.NewFromInt(60), Kind: model.BidProxy},
			wantErr:    biddingerrors.ErrValidationRejected,
			wantReason: biddingerrors.ReasonMissingMaxAmount,
		},
		{
			name:       "manual_with_max",
			auction:    auctionAt(50),
			bidderID:   "user1",
			req:        model.BidRequest{Amount: decimal.NewFromInt(60), MaxAmount: decimal.NewNullDecimal(decimal.NewFromInt(90)), Kind: model.BidManual},
			wantErr:    biddingerrors.ErrValidationRejected,
			wantReason: biddingerrors.ReasonUnexpectedMax,
		},
		{
			name:       "unknown_kind",
			auction:    auctionAt(50),
			bidderID:   "user1",
			req:        model.BidRequest{Amount: decimal.NewFromInt(60), Kind: "sealed"},
			wantErr:    biddingerrors.ErrValidationRejected,
			wantReason: biddingerrors.ReasonUnknownKind,
		},
		{name: "missing_bidder", auction: auctionAt(50), bidderID: "", req: manualReq(60), wantErr: biddingerrors.ErrValidationRejected, wantReason: biddingerrors.ReasonMissingBidder},
		{name: "seller_bids", auction: auctionAt(50), bidderID: "seller", req: manualReq(60), wantErr: biddingerrors.ErrValidationRejected, wantReason: biddingerrors.ReasonSellerBid},
		{name: "rejected_bidder", auction: auctionAt(50), bidderID: "banned", req: manualReq(60), wantErr: biddingerrors.ErrValidationRejected, wantReason: biddingerrors.ReasonBidderRejected},
		{name: "ended_auction", auction: ended, bidderID: "user1", req: manualReq(60), wantErr: biddingerrors.ErrAuctionNotActive},
		{name: "not_started", auction: notStarted, bidderID: "user1", req: manualReq(10), wantErr: biddingerrors.ErrAuctionNotActive},
		{name: "past_end_time", auction: expired, bidderID: "user1", req: manualReq(60), wantErr: biddingerrors.ErrAuctionNotActive},
		{name: "exactly_at_end_time", auction: atClose, bidderID: "user1", req: manualReq(60)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			valid, err := Validate(tt.auction, tt.bidderID, tt.req, now)
			if tt.wantErr == nil {
				require.NoError(t, err)
				require.Equal(t, tt.bidderID, valid.BidderID)
				require.True(t, valid.Request.Amount.Equal(tt.req.Amount))
				require.Equal(t, now, valid.Submitted)
				return
			}

			require.Error(t, err)
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantReason != "" {
				var rejection *biddingerrors.RejectionError
				require.True(t, errors.As(err, &rejection))
				require.Equal(t, tt.wantReason, rejection.Reason)
			} else {
				require.NotErrorIs(t, err, biddingerrors.ErrValidationRejected)
			}
		})
	}
}

func TestValidate_NotActiveIsNotValidation(t *testing.T) {
	t.Parallel()

	a := auctionAt(50)
	a.Status = model.StatusCancelled

	_, err := Validate(a, "user1", manualReq(1), now)

	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotActive)
	require.False(t, errors.Is(err, biddingerrors.ErrBidTooLow))
}
