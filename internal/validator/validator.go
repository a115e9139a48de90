package validator

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"fmt"
	"time"
)

// ValidBid is a request that passed every check and may be handed to the resolver
type ValidBid struct {
	BidderID  string
	Request   model.BidRequest
	Submitted time.Time
}

// Validate checks a bid request against the auction's current state. It has
// no side effects; the first failing check wins.
func Validate(auction model.Auction, bidderID string, req model.BidRequest, now time.Time) (ValidBid, error) {
	if err := checkActive(auction, now); err != nil {
		return ValidBid{}, err
	}

	if bidderID == "" {
		return ValidBid{}, biddingerrors.Reject(biddingerrors.ReasonMissingBidder, "bidder id is required")
	}
	if bidderID == auction.SellerID {
		return ValidBid{}, biddingerrors.Reject(biddingerrors.ReasonSellerBid, "seller %s cannot bid on own auction", bidderID)
	}
	if auction.IsRejectedBidder(bidderID) {
		return ValidBid{}, biddingerrors.Reject(biddingerrors.ReasonBidderRejected, "bidder %s was rejected by the seller", bidderID)
	}

	if !req.Amount.IsPositive() {
		return ValidBid{}, biddingerrors.Reject(biddingerrors.ReasonAmountNotPositive, "amount %s", req.Amount)
	}

	minimum := auction.MinimumNextBid()
	if req.Amount.LessThan(minimum) {
		return ValidBid{}, biddingerrors.Reject(biddingerrors.ReasonBelowMinimum, "minimum next bid is %s", minimum)
	}

	if err := checkKind(req); err != nil {
		return ValidBid{}, err
	}

	return ValidBid{BidderID: bidderID, Request: req, Submitted: now}, nil
}

func checkActive(auction model.Auction, now time.Time) error {
	if auction.Status != model.StatusActive {
		return fmt.Errorf("%w - status is %s", biddingerrors.ErrAuctionNotActive, auction.Status)
	}
	if now.Before(auction.StartTime) {
		return fmt.Errorf("%w - opens at %s", biddingerrors.ErrAuctionNotActive, auction.StartTime.Format(time.RFC3339))
	}
	if now.After(auction.EndTime) {
		return fmt.Errorf("%w - closed at %s", biddingerrors.ErrAuctionNotActive, auction.EndTime.Format(time.RFC3339))
	}
	return nil
}

func checkKind(req model.BidRequest) error {
	switch req.Kind {
	case model.BidManual:
		if req.MaxAmount.Valid {
			return biddingerrors.Reject(biddingerrors.ReasonUnexpectedMax, "max amount is only allowed on proxy bids")
		}
	case model.BidProxy:
		if !req.MaxAmount.Valid {
			return biddingerrors.Reject(biddingerrors.ReasonMissingMaxAmount, "proxy bid requires a max amount")
		}
		if req.MaxAmount.Decimal.LessThan(req.Amount) {
			return biddingerrors.Reject(biddingerrors.ReasonMaxBelowAmount, "max amount %s is below amount %s", req.MaxAmount.Decimal, req.Amount)
		}
	default:
		return biddingerrors.Reject(biddingerrors.ReasonUnknownKind, "kind %q", req.Kind)
	}
	return nil
}
