// Package resolver computes the stable outcome of an auction's standing bids.
//
// Every bid competes with its ceiling: the stated amount for manual bids and
// the max amount for proxy bids. Resolution is a sequence of duels between the
// current leader and a challenger. The higher ceiling wins and ties go to the
// earlier submission. A winning proxy pays one increment over the loser's
// ceiling (capped at its own ceiling), a winning manual bid pays its amount.
// Each effective duel strictly raises the price and exhausts the loser, so the
// passes reach a fixed point after at most one duel per standing proxy.
package resolver

import (
	model "auction-engine/internal/models"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Outcome summarizes what a resolution changed
type Outcome struct {
	Winner         model.Bid
	HasWinner      bool
	PreviousWinner model.Bid
	HadWinner      bool
	BuyNow         bool
	Duels          int
}

// WinnerChanged reports whether the winning bid moved to a different bid
func (o Outcome) WinnerChanged() bool {
	if o.HasWinner != o.HadWinner {
		return true
	}
	return o.HasWinner && o.Winner.BidID != o.PreviousWinner.BidID
}

// Resolve admits incoming into the snapshot and returns the new stable state.
// incoming must already be validated; its Seq must be greater than every standing bid's.
func Resolve(snapshot model.AuctionSnapshot, incoming model.Bid) (model.AuctionSnapshot, Outcome) {
	next := snapshot.Clone()
	incoming.Winning = false
	next.Bids = append(next.Bids, incoming)

	r := newRun(&next)
	r.challenge(len(next.Bids)-1, incoming.Amount)
	r.settle()
	return next, r.finish()
}

// Settle runs the escalation passes without a new bid. Applied to a state
// produced by Resolve it changes nothing.
func Settle(snapshot model.AuctionSnapshot) (model.AuctionSnapshot, Outcome) {
	next := snapshot.Clone()
	r := newRun(&next)
	r.settle()
	return next, r.finish()
}

// Replay recomputes the winner and price from scratch over every non-rejected
// bid in submission order. Used when the leading bidder is withdrawn from the
// contest, the only case where the price may go down. A winner never stands
// below the amount it was submitted with.
func Replay(snapshot model.AuctionSnapshot) (model.AuctionSnapshot, Outcome) {
	next := snapshot.Clone()
	r := newRun(&next)
	r.floorAtOffer = true

	for i := range next.Bids {
		next.Bids[i].Winning = false
	}
	r.leader = -1
	r.price = decimal.Zero

	for i, b := range next.Bids {
		if b.Rejected {
			continue
		}
		// a lone proxy opens at what it offered, a manual bid at its amount
		opening := b.Amount
		if b.IsProxy() {
			opening = decimal.Max(next.Auction.StartingPrice, b.OfferedAmount)
		}
		r.challenge(i, opening)
	}
	r.settle()
	return next, r.finish()
}

type run struct {
	snap      *model.AuctionSnapshot
	increment decimal.Decimal
	leader    int
	price     decimal.Decimal
	prev      model.Bid
	hadPrev   bool
	duels     int

	floorAtOffer bool
}

func newRun(snap *model.AuctionSnapshot) *run {
	r := &run{
		snap:      snap,
		increment: snap.Auction.BidIncrement,
		leader:    -1,
		price:     snap.Auction.CurrentPrice,
	}
	if _, idx, ok := lo.FindIndexOf(snap.Bids, func(b model.Bid) bool { return b.Winning }); ok {
		r.leader = idx
	}
	r.prev, r.hadPrev = r.current()
	return r
}

func (r *run) current() (model.Bid, bool) {
	if r.leader < 0 {
		return model.Bid{}, false
	}
	return r.snap.Bids[r.leader], true
}

// challenge pits bid i against the leader. opening is the price paid when
// there is no leader yet.
func (r *run) challenge(i int, opening decimal.Decimal) bool {
	bids := r.snap.Bids
	c := &bids[i]

	if r.leader < 0 {
		r.leader = i
		r.price = opening
		c.Winning = true
		if c.IsProxy() {
			c.Amount = opening
		}
		r.duels++
		return true
	}
	if r.leader == i || !c.Ceiling().GreaterThan(r.price) {
		return false
	}

	winner, loser := r.leader, i
	if beats(*c, bids[r.leader]) {
		winner, loser = i, r.leader
	}
	w, l := &bids[winner], &bids[loser]

	price := w.Amount
	if w.IsProxy() {
		price = decimal.Min(w.Ceiling(), l.Ceiling().Add(r.increment))
	}
	price = decimal.Max(price, r.price)
	if r.floorAtOffer && w.IsProxy() {
		price = decimal.Min(w.Ceiling(), decimal.Max(price, w.OfferedAmount))
	}

	l.Winning = false
	if l.IsProxy() {
		l.Amount = l.Ceiling()
	}
	w.Winning = true
	if w.IsProxy() {
		w.Amount = price
	}

	changed := winner != r.leader || !price.Equal(r.price)
	r.leader = winner
	r.price = price
	r.duels++
	return changed
}

// beats reports whether challenger displaces leader
func beats(challenger, leader model.Bid) bool {
	cc, lc := challenger.Ceiling(), leader.Ceiling()
	if !cc.Equal(lc) {
		return cc.GreaterThan(lc)
	}
	return challenger.Seq < leader.Seq
}

// settle lets standing proxies escalate until none can
func (r *run) settle() {
	bids := r.snap.Bids
	for pass := 0; pass <= len(bids); pass++ {
		changed := false
		for i := range bids {
			b := bids[i]
			if i == r.leader || b.Rejected || !b.IsProxy() {
				continue
			}
			if r.challenge(i, b.Amount) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

func (r *run) finish() Outcome {
	a := &r.snap.Auction
	out := Outcome{PreviousWinner: r.prev, HadWinner: r.hadPrev, Duels: r.duels}

	if r.leader < 0 {
		a.CurrentPrice = decimal.Zero
		a.HighestBidderID = ""
		return out
	}

	w := &r.snap.Bids[r.leader]
	if a.HasBuyNow() && !r.price.LessThan(a.BuyNowPrice.Decimal) {
		r.price = a.BuyNowPrice.Decimal
		w.Amount = r.price
		out.BuyNow = true
	}

	a.CurrentPrice = r.price
	a.HighestBidderID = w.BidderID
	out.Winner, out.HasWinner = *w, true
	return out
}
