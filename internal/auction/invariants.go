package auction

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"fmt"
)

func checkInvariants(prev, next model.AuctionSnapshot, allowPriceDrop bool) error {
	a := next.Auction

	if !allowPriceDrop && a.CurrentPrice.LessThan(prev.Auction.CurrentPrice) {
		return violation(a.ID, "current price decreased from %s to %s", prev.Auction.CurrentPrice, a.CurrentPrice)
	}
	if a.CurrentPrice.IsNegative() {
		return violation(a.ID, "negative current price %s", a.CurrentPrice)
	}

	var winners []model.Bid
	for _, b := range next.Bids {
		if b.Rejected && b.Winning {
			return violation(a.ID, "rejected bid %s is winning", b.BidID)
		}
		if b.IsProxy() && b.MaxAmount.Valid && b.Amount.GreaterThan(b.MaxAmount.Decimal) {
			return violation(a.ID, "proxy bid %s escalated to %s past its max %s", b.BidID, b.Amount, b.MaxAmount.Decimal)
		}
		if b.Winning {
			winners = append(winners, b)
		}
	}
	if len(winners) > 1 {
		return violation(a.ID, "%d bids hold the winning flag", len(winners))
	}

	// a cancelled auction keeps its last price for the record but has no winner
	if a.Status == model.StatusCancelled {
		return nil
	}

	if a.CurrentPrice.IsZero() {
		if len(winners) != 0 || a.HighestBidderID != "" {
			return violation(a.ID, "winner present at zero price")
		}
		return nil
	}
	if len(winners) == 0 {
		return violation(a.ID, "price %s without a winning bid", a.CurrentPrice)
	}
	if w := winners[0]; !w.Amount.Equal(a.CurrentPrice) || w.BidderID != a.HighestBidderID {
		return violation(a.ID, "winning bid %s (%s by %s) disagrees with auction (%s by %s)",
			w.BidID, w.Amount, w.BidderID, a.CurrentPrice, a.HighestBidderID)
	}
	return nil
}

func violation(auctionID, format string, args ...any) error {
	return fmt.Errorf("%w - auction %s: %s", biddingerrors.ErrEngineInvariantViolation, auctionID, fmt.Sprintf(format, args...))
}

// diffBids lists bids appended or changed between two ordered bid sets
func diffBids(prev, next []model.Bid) []model.BidDelta {
	var deltas []model.BidDelta
	for i, b := range next {
		if i >= len(prev) {
			deltas = append(deltas, model.BidDelta{Bid: b, Created: true})
			continue
		}
		if !sameBid(prev[i], b) {
			deltas = append(deltas, model.BidDelta{Bid: b})
		}
	}
	return deltas
}

func sameBid(a, b model.Bid) bool {
	return a.BidID == b.BidID &&
		a.Amount.Equal(b.Amount) &&
		a.Winning == b.Winning &&
		a.Rejected == b.Rejected &&
		a.RejectionReason == b.RejectionReason
}
