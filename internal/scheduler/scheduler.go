package scheduler

import (
	"auction-engine/internal/clock"
	model "auction-engine/internal/models"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Lifecycle is the part of the bidding service the scheduler drives
type Lifecycle interface {
	ListAuctions(ctx context.Context, statuses ...model.AuctionStatus) ([]model.Auction, error)
	ActivateIfDue(ctx context.Context, auctionID string) (bool, error)
	CloseIfExpired(ctx context.Context, auctionID string) (bool, error)
}

// Result counts the transitions made by one sweep
type Result struct {
	Activated int
	Closed    int
}

// Scheduler opens draft auctions once their start time is reached and
// closes active ones after their end time
type Scheduler struct {
	service  Lifecycle
	clock    clock.Clock
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler that sweeps every interval once started
func New(service Lifecycle, clk clock.Clock, interval time.Duration) *Scheduler {
	return &Scheduler{service: service, clock: clk, interval: interval}
}

// RunOnce performs a single sweep. Failures on one auction do not stop the
// sweep; they are joined into the returned error.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	auctions, err := s.service.ListAuctions(ctx, model.StatusDraft, model.StatusActive)
	if err != nil {
		return res, fmt.Errorf("scheduler: list auctions: %w", err)
	}

	now := s.clock.Now()
	var errs []error
	for _, a := range auctions {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		switch {
		case a.Status == model.StatusDraft && !now.Before(a.StartTime):
			ok, err := s.service.ActivateIfDue(ctx, a.ID)
			if err != nil {
				errs = append(errs, fmt.Errorf("activate %s: %w", a.ID, err))
				continue
			}
			if ok {
				res.Activated++
				utils.Info("Auction activated", map[string]any{"auction_id": a.ID})
			}
		case a.Status == model.StatusActive && now.After(a.EndTime):
			ok, err := s.service.CloseIfExpired(ctx, a.ID)
			if err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", a.ID, err))
				continue
			}
			if ok {
				res.Closed++
				utils.Info("Auction closed", map[string]any{"auction_id": a.ID})
			}
		}
	}
	return res, errors.Join(errs...)
}

// Start runs sweeps in the background until Stop or until ctx is done.
// Starting twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop ends the background loop and waits for an in-flight sweep
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				utils.Warn("Scheduler sweep failed", map[string]any{"error": err.Error()})
			}
			if res.Activated+res.Closed > 0 {
				utils.Debug("Scheduler sweep", map[string]any{"activated": res.Activated, "closed": res.Closed})
			}
		}
	}
}
