package auction

import (
	"auction-engine/internal/autoextend"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/clock"
	model "auction-engine/internal/models"
	"auction-engine/internal/resolver"
	"auction-engine/internal/validator"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Transition is a proposed state change. It only takes effect once the
// caller has persisted it and calls Machine.Commit.
type Transition struct {
	Next     model.AuctionSnapshot
	Deltas   []model.BidDelta
	Events   []model.Event
	Accepted model.Bid
	Outbid   []model.Bid
}

// Machine owns the bidding state of one auction. It is not safe for
// concurrent use; the registry hands it to one caller at a time.
type Machine struct {
	snapshot model.AuctionSnapshot
	clock    clock.Clock
	halted   error
}

// NewMachine wraps a snapshot loaded from persistence
func NewMachine(snapshot model.AuctionSnapshot, clk clock.Clock) *Machine {
	return &Machine{snapshot: snapshot.Clone(), clock: clk}
}

func (m *Machine) ID() string {
	return m.snapshot.Auction.ID
}

// Snapshot returns a copy of the committed state
func (m *Machine) Snapshot() model.AuctionSnapshot {
	return m.snapshot.Clone()
}

// Halted returns the invariant violation that stopped this machine, if any
func (m *Machine) Halted() error {
	return m.halted
}

// Reset replaces the committed state, e.g. after a commit conflict
func (m *Machine) Reset(snapshot model.AuctionSnapshot) {
	m.snapshot = snapshot.Clone()
}

// Commit makes a persisted transition the current state
func (m *Machine) Commit(t Transition) {
	m.snapshot = t.Next.Clone()
}

// PlaceBid validates and resolves a bid against the committed state
func (m *Machine) PlaceBid(bidID, bidderID string, req model.BidRequest) (Transition, error) {
	if m.halted != nil {
		return Transition{}, m.halted
	}

	now := m.clock.Now()
	current := m.snapshot.Auction
	valid, err := validator.Validate(current, bidderID, req, now)
	if err != nil {
		return Transition{}, err
	}

	bid := model.Bid{
		BidID:         bidID,
		AuctionID:     current.ID,
		BidderID:      valid.BidderID,
		Amount:        valid.Request.Amount,
		OfferedAmount: valid.Request.Amount,
		Kind:          valid.Request.Kind,
		Seq:           current.NextSeq,
		CreatedAt:     valid.Submitted,
	}
	if bid.IsProxy() {
		bid.MaxAmount = valid.Request.MaxAmount
	}

	next, outcome := resolver.Resolve(m.snapshot, bid)
	a := &next.Auction
	a.NextSeq = current.NextSeq + 1
	a.BidCount++

	var events []model.Event
	if outcome.BuyNow {
		a.Status = model.StatusEnded
		events = append(events, m.closingEvents(next, now)...)
	} else if end, extended := autoextend.Apply(*a, now); extended {
		a.EndTime = end
		events = append(events, model.Event{
			Type:       model.EventAuctionExtended,
			AuctionID:  a.ID,
			Price:      a.CurrentPrice,
			EndTime:    end,
			OccurredAt: now,
		})
	}

	accepted := next.Bids[len(next.Bids)-1]
	var outbid []model.Bid
	if outcome.HadWinner {
		if prev := findBid(next, outcome.PreviousWinner.BidID); !prev.Winning {
			outbid = append(outbid, prev)
		}
	}
	if !accepted.Winning {
		outbid = append(outbid, accepted)
	}
	for _, b := range outbid {
		if b.BidderID == a.HighestBidderID {
			continue
		}
		events = append(events, model.Event{
			Type:       model.EventOutbid,
			AuctionID:  a.ID,
			BidderID:   b.BidderID,
			Price:      a.CurrentPrice,
			EndTime:    a.EndTime,
			OccurredAt: now,
		})
	}

	t, err := m.transition(next, now, false)
	if err != nil {
		return Transition{}, err
	}
	t.Events = events
	t.Accepted = accepted
	t.Outbid = outbid
	return t, nil
}

// Activate opens a draft auction for bidding
func (m *Machine) Activate() (Transition, error) {
	return m.activate(false)
}

// ActivateIfDue opens a draft auction whose start time has been reached
func (m *Machine) ActivateIfDue() (Transition, error) {
	return m.activate(true)
}

func (m *Machine) activate(requireDue bool) (Transition, error) {
	if m.halted != nil {
		return Transition{}, m.halted
	}
	now := m.clock.Now()
	a := m.snapshot.Auction
	if a.Status != model.StatusDraft {
		return Transition{}, fmt.Errorf("%w - cannot activate %s auction", biddingerrors.ErrInvalidTransition, a.Status)
	}
	if requireDue && now.Before(a.StartTime) {
		return Transition{}, fmt.Errorf("%w - start time not reached", biddingerrors.ErrInvalidTransition)
	}

	next := m.snapshot.Clone()
	next.Auction.Status = model.StatusActive
	return m.transition(next, now, false)
}

// Close ends an active auction now, keeping the current winner
func (m *Machine) Close() (Transition, error) {
	return m.close(false)
}

// CloseIfExpired ends an active auction whose end time has passed
func (m *Machine) CloseIfExpired() (Transition, error) {
	return m.close(true)
}

func (m *Machine) close(requireExpired bool) (Transition, error) {
	if m.halted != nil {
		return Transition{}, m.halted
	}
	now := m.clock.Now()
	a := m.snapshot.Auction
	if a.Status != model.StatusActive {
		return Transition{}, fmt.Errorf("%w - cannot close %s auction", biddingerrors.ErrInvalidTransition, a.Status)
	}
	if requireExpired && !now.After(a.EndTime) {
		return Transition{}, fmt.Errorf("%w - end time not reached", biddingerrors.ErrInvalidTransition)
	}

	next := m.snapshot.Clone()
	next.Auction.Status = model.StatusEnded
	t, err := m.transition(next, now, false)
	if err != nil {
		return Transition{}, err
	}
	t.Events = m.closingEvents(next, now)
	return t, nil
}

// Cancel freezes a draft or active auction. Standing bids lose the winning
// flag but are not rejected.
func (m *Machine) Cancel() (Transition, error) {
	if m.halted != nil {
		return Transition{}, m.halted
	}
	now := m.clock.Now()
	a := m.snapshot.Auction
	if a.Status != model.StatusDraft && a.Status != model.StatusActive {
		return Transition{}, fmt.Errorf("%w - cannot cancel %s auction", biddingerrors.ErrInvalidTransition, a.Status)
	}

	next := m.snapshot.Clone()
	next.Auction.Status = model.StatusCancelled
	for i := range next.Bids {
		next.Bids[i].Winning = false
	}

	t, err := m.transition(next, now, false)
	if err != nil {
		return Transition{}, err
	}
	bidders := lo.Uniq(lo.Map(next.Bids, func(b model.Bid, _ int) string { return b.BidderID }))
	for _, bidderID := range bidders {
		t.Events = append(t.Events, model.Event{
			Type:       model.EventAuctionCancelled,
			AuctionID:  a.ID,
			BidderID:   bidderID,
			Price:      a.CurrentPrice,
			EndTime:    a.EndTime,
			OccurredAt: now,
		})
	}
	return t, nil
}

// RejectBidder bars a bidder from the auction and rejects all of their bids.
// When the bidder was leading, the winner is recomputed from the remaining bids.
func (m *Machine) RejectBidder(bidderID, reason string) (Transition, error) {
	if m.halted != nil {
		return Transition{}, m.halted
	}
	now := m.clock.Now()
	a := m.snapshot.Auction
	if a.Status != model.StatusActive {
		return Transition{}, fmt.Errorf("%w - cannot reject bidders on %s auction", biddingerrors.ErrAuctionNotActive, a.Status)
	}
	if a.IsRejectedBidder(bidderID) {
		return Transition{}, fmt.Errorf("%w - bidder %s already rejected", biddingerrors.ErrInvalidTransition, bidderID)
	}
	if reason == "" {
		reason = string(biddingerrors.ReasonRejectedBySeller)
	}

	marked := m.snapshot.Clone()
	marked.Auction.RejectedBidders = append(marked.Auction.RejectedBidders, bidderID)
	for i := range marked.Bids {
		b := &marked.Bids[i]
		if b.BidderID != bidderID || b.Rejected {
			continue
		}
		at := now
		b.Rejected = true
		b.RejectionReason = reason
		b.RejectedAt = &at
	}

	// only withdrawing the leader reopens the contest; otherwise the
	// standing winner and price are untouched
	next, outcome, leader := marked, resolver.Outcome{}, a.HighestBidderID == bidderID
	if leader {
		next, outcome = resolver.Replay(marked)
	}
	t, err := m.transition(next, now, leader)
	if err != nil {
		return Transition{}, err
	}
	t.Events = append(t.Events, model.Event{
		Type:       model.EventBidderRejected,
		AuctionID:  a.ID,
		BidderID:   bidderID,
		Price:      next.Auction.CurrentPrice,
		EndTime:    next.Auction.EndTime,
		OccurredAt: now,
	})
	if outcome.HadWinner && outcome.PreviousWinner.BidderID != bidderID {
		if prev := findBid(next, outcome.PreviousWinner.BidID); !prev.Winning {
			t.Outbid = append(t.Outbid, prev)
		}
	}
	return t, nil
}

// transition stamps the next snapshot, diffs it and checks invariants. A
// violation halts the machine for good.
func (m *Machine) transition(next model.AuctionSnapshot, now time.Time, allowPriceDrop bool) (Transition, error) {
	next.Auction.Version = m.snapshot.Auction.Version + 1
	next.Auction.UpdatedAt = now

	if err := checkInvariants(m.snapshot, next, allowPriceDrop); err != nil {
		m.halted = err
		return Transition{}, err
	}
	return Transition{Next: next, Deltas: diffBids(m.snapshot.Bids, next.Bids)}, nil
}

func (m *Machine) closingEvents(next model.AuctionSnapshot, now time.Time) []model.Event {
	a := next.Auction
	events := []model.Event{{
		Type:       model.EventAuctionClosed,
		AuctionID:  a.ID,
		BidderID:   a.HighestBidderID,
		Price:      a.CurrentPrice,
		EndTime:    a.EndTime,
		OccurredAt: now,
	}}
	if a.HighestBidderID != "" {
		events = append(events, model.Event{
			Type:       model.EventWon,
			AuctionID:  a.ID,
			BidderID:   a.HighestBidderID,
			Price:      a.CurrentPrice,
			EndTime:    a.EndTime,
			OccurredAt: now,
		})
	}
	return events
}

func findBid(s model.AuctionSnapshot, bidID string) model.Bid {
	b, _ := lo.Find(s.Bids, func(b model.Bid) bool { return b.BidID == bidID })
	return b
}
