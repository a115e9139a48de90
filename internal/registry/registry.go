package registry

import (
	"auction-engine/internal/auction"
	"auction-engine/internal/clock"
	model "auction-engine/internal/models"
	"auction-engine/utils"
	"context"
	"fmt"
	"sync"
)

// Loader fetches the committed state of one auction
type Loader func(ctx context.Context, auctionID string) (model.AuctionSnapshot, error)

// Registry maps auction ids to their state machines and hands out exclusive
// access to one caller per auction at a time. Different auctions never block
// each other.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	load    Loader
	clock   clock.Clock
}

type entry struct {
	// one-slot semaphore so waiters can give up on context cancellation
	sem     chan struct{}
	machine *auction.Machine
}

// New creates a registry backed by load
func New(load Loader, clk clock.Clock) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		load:    load,
		clock:   clk,
	}
}

// Handle is exclusive access to one auction's machine until Release
type Handle struct {
	reg      *Registry
	id       string
	entry    *entry
	released bool
}

// Acquire blocks until the caller holds the auction's handle or ctx is done.
// The machine is loaded on first use; an id that fails to load leaves no entry behind.
func (r *Registry) Acquire(ctx context.Context, auctionID string) (*Handle, error) {
	for {
		e := r.entryFor(auctionID)

		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire auction %s: %w", auctionID, ctx.Err())
		}

		// the entry may have been dropped while we waited for it
		if !r.registered(auctionID, e) {
			<-e.sem
			continue
		}

		h := &Handle{reg: r, id: auctionID, entry: e}
		if e.machine == nil {
			if err := h.Reload(ctx); err != nil {
				r.drop(auctionID, e)
				h.Release()
				return nil, err
			}
		}
		return h, nil
	}
}

// WithAuction runs fn while holding the auction's handle
func (r *Registry) WithAuction(ctx context.Context, auctionID string, fn func(m *auction.Machine, h *Handle) error) error {
	h, err := r.Acquire(ctx, auctionID)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(h.Machine(), h)
}

// Len reports how many auctions have an entry
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) entryFor(auctionID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[auctionID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		r.entries[auctionID] = e
	}
	return e
}

func (r *Registry) registered(auctionID string, e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[auctionID] == e
}

// drop removes an entry whose machine never loaded. Caller holds e.sem.
func (r *Registry) drop(auctionID string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.machine == nil && r.entries[auctionID] == e {
		delete(r.entries, auctionID)
	}
}

// Machine returns the auction's machine. Only valid until Release.
func (h *Handle) Machine() *auction.Machine {
	return h.entry.machine
}

// Reload replaces the machine's state with a fresh snapshot from the loader.
// A halted machine stays halted.
func (h *Handle) Reload(ctx context.Context) error {
	snapshot, err := h.reg.load(ctx, h.id)
	if err != nil {
		return fmt.Errorf("load auction %s: %w", h.id, err)
	}
	if h.entry.machine == nil {
		h.entry.machine = auction.NewMachine(snapshot, h.reg.clock)
		utils.Info("Auction machine loaded", map[string]any{
			"auction_id": h.id,
			"version":    snapshot.Auction.Version,
			"bids":       len(snapshot.Bids),
		})
		return nil
	}
	h.entry.machine.Reset(snapshot)
	return nil
}

// Release gives up the handle. Calling it twice is a no-op.
func (h *Handle) Release() {
	if h.released {
		return
	}
	h.released = true
	<-h.entry.sem
}
