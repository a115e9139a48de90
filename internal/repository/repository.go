package repository

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// AuctionDB defines the auction storage interface. A commit is one
// transactional unit: the auction row and every bid delta land together or
// not at all.
type AuctionDB interface {
	CreateAuction(ctx context.Context, auction model.Auction) error
	LoadAuctionState(ctx context.Context, auctionID string) (model.AuctionSnapshot, error)
	CommitAuctionState(ctx context.Context, auctionID string, next model.AuctionSnapshot, deltas []model.BidDelta) error
	ListAuctions(ctx context.Context, statuses ...model.AuctionStatus) ([]model.Auction, error)
	GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu             sync.RWMutex
	auctions       map[string]model.AuctionSnapshot // key: auctionID -> value: auction and its bids
	bidderAuctions map[string][]string              // key: bidderID -> value: auctionIDs the bidder has bid on
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:       make(map[string]model.AuctionSnapshot),
		bidderAuctions: make(map[string][]string),
	}
}

// CreateAuction stores a new auction with no bids
func (r *MemoryRepo) CreateAuction(_ context.Context, auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if auction.ID == "" {
		return fmt.Errorf("create auction: %w - empty id", biddingerrors.ErrInvalidAuction)
	}
	if _, ok := r.auctions[auction.ID]; ok {
		return fmt.Errorf("create auction %s: %w", auction.ID, biddingerrors.ErrAuctionExists)
	}
	r.auctions[auction.ID] = model.AuctionSnapshot{Auction: auction}.Clone()
	return nil
}

// LoadAuctionState returns a copy of the auction and all of its bids
func (r *MemoryRepo) LoadAuctionState(_ context.Context, auctionID string) (model.AuctionSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.auctions[auctionID]
	if !ok {
		return model.AuctionSnapshot{}, fmt.Errorf("load auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return s.Clone(), nil
}

// CommitAuctionState applies next and its bid deltas if the stored version is
// exactly one behind next
func (r *MemoryRepo) CommitAuctionState(_ context.Context, auctionID string, next model.AuctionSnapshot, deltas []model.BidDelta) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.auctions[auctionID]
	if !ok {
		return fmt.Errorf("commit auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if stored.Auction.Version != next.Auction.Version-1 {
		return fmt.Errorf("commit auction %s: %w - stored version %d, next version %d",
			auctionID, biddingerrors.ErrCommitConflict, stored.Auction.Version, next.Auction.Version)
	}

	updated := stored.Clone()
	updated.Auction = next.Clone().Auction
	var bidders []string
	for _, d := range deltas {
		if d.Created {
			updated.Bids = append(updated.Bids, d.Bid)
			bidders = append(bidders, d.Bid.BidderID)
			continue
		}
		_, idx, found := lo.FindIndexOf(updated.Bids, func(b model.Bid) bool { return b.BidID == d.Bid.BidID })
		if !found {
			return fmt.Errorf("commit auction %s: %w - bid %s not stored", auctionID, biddingerrors.ErrCommitConflict, d.Bid.BidID)
		}
		updated.Bids[idx] = d.Bid
	}
	r.auctions[auctionID] = updated.Clone()
	for _, bidderID := range bidders {
		r.indexBidder(bidderID, auctionID)
	}
	return nil
}

// ListAuctions returns auctions in any of the given statuses, or all auctions
// when none are given, ordered by start time
func (r *MemoryRepo) ListAuctions(_ context.Context, statuses ...model.AuctionStatus) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Auction, 0, len(r.auctions))
	for _, s := range r.auctions {
		if len(statuses) == 0 || lo.Contains(statuses, s.Auction.Status) {
			out = append(out, s.Clone().Auction)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

// GetAuctionsByBidder returns all auctions a bidder has bid on
func (r *MemoryRepo) GetAuctionsByBidder(_ context.Context, bidderID string) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.bidderAuctions[bidderID]
	if !ok || len(ids) == 0 {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, biddingerrors.ErrBidderNoAuctions)
	}

	auctions := make([]model.Auction, 0, len(ids))
	for _, id := range ids {
		if s, exists := r.auctions[id]; exists {
			auctions = append(auctions, s.Clone().Auction)
		}
	}
	return auctions, nil
}

// caller holds r.mu
func (r *MemoryRepo) indexBidder(bidderID, auctionID string) {
	if lo.Contains(r.bidderAuctions[bidderID], auctionID) {
		return
	}
	r.bidderAuctions[bidderID] = append(r.bidderAuctions[bidderID], auctionID)
}
