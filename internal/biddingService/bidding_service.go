package bidding

import (
	"auction-engine/internal/auction"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/clock"
	model "auction-engine/internal/models"
	"auction-engine/internal/registry"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

const defaultCommitRetries = 3

// EventSink receives committed events for asynchronous delivery
type EventSink interface {
	Dispatch(events []model.Event) error
}

// BiddingService defines the business logic for auction bidding. Every
// mutation of an auction runs under that auction's registry handle.
type BiddingService struct {
	repo          repository.AuctionDB
	registry      *registry.Registry
	events        EventSink
	clock         clock.Clock
	commitRetries int
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithClock replaces the system clock
func WithClock(clk clock.Clock) Option {
	return func(s *BiddingService) { s.clock = clk }
}

// WithCommitRetries sets how many times a conflicting commit is re-resolved
// from fresh state before the caller gets ErrTransientFailure
func WithCommitRetries(n int) Option {
	return func(s *BiddingService) {
		if n >= 0 {
			s.commitRetries = n
		}
	}
}

// NewBiddingService creates a new BiddingService instance. events may be nil.
func NewBiddingService(repo repository.AuctionDB, events EventSink, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:          repo,
		events:        events,
		clock:         clock.SystemClock{},
		commitRetries: defaultCommitRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry = registry.New(repo.LoadAuctionState, s.clock)
	return s
}

// Clock returns the clock the service resolves bids against
func (s *BiddingService) Clock() clock.Clock {
	return s.clock
}

// CreateAuction stores a new draft auction owned by sellerID
func (s *BiddingService) CreateAuction(ctx context.Context, sellerID string, req model.AuctionRequest) (model.Auction, error) {
	if err := validateAuctionRequest(sellerID, req); err != nil {
		return model.Auction{}, err
	}

	now := s.clock.Now()
	a := model.Auction{
		ID:              utils.GenerateID(),
		SellerID:        sellerID,
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		StartingPrice:   req.StartingPrice,
		BidIncrement:    req.BidIncrement,
		BuyNowPrice:     req.BuyNowPrice,
		StartTime:       req.StartTime.UTC(),
		EndTime:         req.EndTime.UTC(),
		AutoExtend:      req.AutoExtend,
		ExtendThreshold: req.ExtendThreshold,
		ExtendDuration:  req.ExtendDuration,
		Status:          model.StatusDraft,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.CreateAuction(ctx, a); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to create auction for seller %s: %w", sellerID, err)
	}
	return a, nil
}

// validateAuctionRequest checks input validity of a new auction
func validateAuctionRequest(sellerID string, req model.AuctionRequest) error {
	switch {
	case sellerID == "":
		return fmt.Errorf("service: %w - missing seller", biddingerrors.ErrInvalidAuction)
	case strings.TrimSpace(req.Title) == "":
		return fmt.Errorf("service: %w - missing title", biddingerrors.ErrInvalidAuction)
	case !req.StartingPrice.IsPositive():
		return fmt.Errorf("service: %w - starting price must be positive", biddingerrors.ErrInvalidAuction)
	case !req.BidIncrement.IsPositive():
		return fmt.Errorf("service: %w - bid increment must be positive", biddingerrors.ErrInvalidAuction)
	case !req.EndTime.After(req.StartTime):
		return fmt.Errorf("service: %w - end time must be after start time", biddingerrors.ErrInvalidAuction)
	case req.BuyNowPrice.Valid && !req.BuyNowPrice.Decimal.GreaterThan(req.StartingPrice):
		return fmt.Errorf("service: %w - buy now price must exceed starting price", biddingerrors.ErrInvalidAuction)
	case req.ExtendThreshold < 0 || req.ExtendDuration < 0:
		return fmt.Errorf("service: %w - negative auto-extend window", biddingerrors.ErrInvalidAuction)
	case req.AutoExtend && req.ExtendDuration == 0:
		return fmt.Errorf("service: %w - auto-extend needs an extend duration", biddingerrors.ErrInvalidAuction)
	case req.AutoExtend && req.ExtendDuration <= req.ExtendThreshold:
		// a shorter push than the window would let qualifying bids land without moving the close
		return fmt.Errorf("service: %w - extend duration must be longer than the extend threshold", biddingerrors.ErrInvalidAuction)
	}
	return nil
}

// ActivateAuction opens a draft auction for bidding ahead of its schedule
func (s *BiddingService) ActivateAuction(ctx context.Context, auctionID, sellerID string) (model.Auction, error) {
	t, err := s.apply(ctx, auctionID, func(m *auction.Machine) (auction.Transition, error) {
		if err := checkSeller(m, sellerID); err != nil {
			return auction.Transition{}, err
		}
		return m.Activate()
	})
	if err != nil {
		return model.Auction{}, err
	}
	return t.Next.Auction, nil
}

// CloseAuction ends an active auction now
func (s *BiddingService) CloseAuction(ctx context.Context, auctionID, sellerID string) (model.Auction, error) {
	t, err := s.apply(ctx, auctionID, func(m *auction.Machine) (auction.Transition, error) {
		if err := checkSeller(m, sellerID); err != nil {
			return auction.Transition{}, err
		}
		return m.Close()
	})
	if err != nil {
		return model.Auction{}, err
	}
	return t.Next.Auction, nil
}

// CancelAuction freezes a draft or active auction
func (s *BiddingService) CancelAuction(ctx context.Context, auctionID, sellerID string) (model.Auction, error) {
	t, err := s.apply(ctx, auctionID, func(m *auction.Machine) (auction.Transition, error) {
		if err := checkSeller(m, sellerID); err != nil {
			return auction.Transition{}, err
		}
		return m.Cancel()
	})
	if err != nil {
		return model.Auction{}, err
	}
	return t.Next.Auction, nil
}

// ActivateIfDue activates a draft auction whose start time has passed. It
// reports false when there was nothing to do.
func (s *BiddingService) ActivateIfDue(ctx context.Context, auctionID string) (bool, error) {
	_, err := s.apply(ctx, auctionID, func(m *auction.Machine) (auction.Transition, error) {
		return m.ActivateIfDue()
	})
	if errors.Is(err, biddingerrors.ErrInvalidTransition) {
		return false, nil
	}
	return err == nil, err
}

// CloseIfExpired ends an active auction whose end time has passed. It reports
// false when there was nothing to do, e.g. because a late bid extended it.
func (s *BiddingService) CloseIfExpired(ctx context.Context, auctionID string) (bool, error) {
	_, err := s.apply(ctx, auctionID, func(m *auction.Machine) (auction.Transition, error) {
		return m.CloseIfExpired()
	})
	if errors.Is(err, biddingerrors.ErrInvalidTransition) {
		return false, nil
	}
	return err == nil, err
}

// PlaceBid validates, resolves and commits a bid. Validation failures leave
// the auction untouched and are never retried.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, req model.BidRequest) (model.BidResult, error) {
	if auctionID == "" || bidderID == "" {
		return model.BidResult{}, fmt.Errorf("service: %w - missing auctionID or bidderID", biddingerrors.ErrInvalidBid)
	}

	bidID := utils.GenerateID()
	t, err := s.apply(ctx, auctionID, func(m *auction.Machine) (auction.Transition, error) {
		return m.PlaceBid(bidID, bidderID, req)
	})
	if err != nil {
		return model.BidResult{}, err
	}

	return model.BidResult{
		Bid:     t.Accepted,
		Outbid:  t.Outbid,
		Auction: t.Next.Auction,
		Events:  t.Events,
	}, nil
}

// RejectBidder lets the seller bar a bidder. All of the bidder's bids are
// rejected and the winner is recomputed from the remaining bids.
func (s *BiddingService) RejectBidder(ctx context.Context, auctionID, sellerID, bidderID, reason string) (model.Auction, error) {
	if bidderID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - missing bidderID", biddingerrors.ErrInvalidBid)
	}

	t, err := s.apply(ctx, auctionID, func(m *auction.Machine) (auction.Transition, error) {
		if err := checkSeller(m, sellerID); err != nil {
			return auction.Transition{}, err
		}
		return m.RejectBidder(bidderID, reason)
	})
	if err != nil {
		return model.Auction{}, err
	}
	return t.Next.Auction, nil
}

// GetAuction returns the committed state of an auction
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	snapshot, err := s.load(ctx, auctionID)
	if err != nil {
		return model.Auction{}, err
	}
	return snapshot.Auction, nil
}

// ListAuctions returns auctions in the given statuses, or all of them
func (s *BiddingService) ListAuctions(ctx context.Context, statuses ...model.AuctionStatus) ([]model.Auction, error) {
	auctions, err := s.repo.ListAuctions(ctx, statuses...)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return auctions, nil
}

// GetBidsForAuction returns all bids of an auction in submission order
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	snapshot, err := s.load(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if len(snapshot.Bids) == 0 {
		return nil, fmt.Errorf("service: auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return snapshot.Bids, nil
}

// GetWinningBid returns the bid currently holding the winning flag
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error) {
	snapshot, err := s.load(ctx, auctionID)
	if err != nil {
		return model.Bid{}, err
	}
	winning, ok := snapshot.WinningBid()
	if !ok {
		return model.Bid{}, fmt.Errorf("service: auction %s has no winning bid: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return winning, nil
}

// GetAuctionsByBidder returns all auctions a bidder has placed bids on
func (s *BiddingService) GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("service: %w - empty bidder ID", biddingerrors.ErrInvalidBid)
	}

	auctions, err := s.repo.GetAuctionsByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for bidder %s: %w", bidderID, err)
	}
	return auctions, nil
}

func (s *BiddingService) load(ctx context.Context, auctionID string) (model.AuctionSnapshot, error) {
	if auctionID == "" {
		return model.AuctionSnapshot{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}
	snapshot, err := s.repo.LoadAuctionState(ctx, auctionID)
	if err != nil {
		return model.AuctionSnapshot{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}
	return snapshot, nil
}

// apply runs step under the auction's handle and commits the transition it
// builds. A commit conflict reloads the machine and runs step again against
// the fresh state. Events go out only after the handle is released.
func (s *BiddingService) apply(ctx context.Context, auctionID string, step func(m *auction.Machine) (auction.Transition, error)) (auction.Transition, error) {
	if auctionID == "" {
		return auction.Transition{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	var committed auction.Transition
	err := s.registry.WithAuction(ctx, auctionID, func(m *auction.Machine, h *registry.Handle) error {
		for attempt := 0; ; attempt++ {
			t, err := step(m)
			if err != nil {
				if errors.Is(err, biddingerrors.ErrEngineInvariantViolation) {
					utils.Error("Auction halted", map[string]any{"auction_id": auctionID, "error": err.Error()})
				}
				return err
			}

			err = s.repo.CommitAuctionState(ctx, auctionID, t.Next, t.Deltas)
			if err == nil {
				m.Commit(t)
				committed = t
				return nil
			}
			if !errors.Is(err, biddingerrors.ErrCommitConflict) {
				return fmt.Errorf("service: %w - commit auction %s: %w", biddingerrors.ErrTransientFailure, auctionID, err)
			}
			if attempt >= s.commitRetries {
				return fmt.Errorf("service: %w - auction %s still conflicting after %d attempts", biddingerrors.ErrTransientFailure, auctionID, attempt+1)
			}

			utils.Warn("Commit conflict, resolving again from fresh state", map[string]any{
				"auction_id": auctionID,
				"attempt":    attempt + 1,
			})
			if err := h.Reload(ctx); err != nil {
				return fmt.Errorf("service: %w - reload auction %s: %w", biddingerrors.ErrTransientFailure, auctionID, err)
			}
		}
	})
	if err != nil {
		if errors.Is(err, biddingerrors.ErrAuctionNotFound) {
			return auction.Transition{}, fmt.Errorf("service: %w", err)
		}
		return auction.Transition{}, err
	}

	s.dispatch(committed.Events)
	return committed, nil
}

func (s *BiddingService) dispatch(events []model.Event) {
	if s.events == nil || len(events) == 0 {
		return
	}
	if err := s.events.Dispatch(events); err != nil {
		utils.Warn("Dropping auction events", map[string]any{
			"auction_id": events[0].AuctionID,
			"types":      lo.Map(events, func(e model.Event, _ int) string { return string(e.Type) }),
			"error":      err.Error(),
		})
	}
}

func checkSeller(m *auction.Machine, sellerID string) error {
	if owner := m.Snapshot().Auction.SellerID; owner != sellerID {
		return fmt.Errorf("service: %w - only the seller may manage auction %s", biddingerrors.ErrForbidden, m.ID())
	}
	return nil
}
