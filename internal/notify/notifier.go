package notify

import (
	model "auction-engine/internal/models"
	"auction-engine/utils"
	"context"
	"errors"
)

//go:generate mockgen -source=notifier.go -destination=mock_notifier.go -package=notify

// Notifier delivers committed auction events to bidders. Delivery failures
// never affect auction state.
type Notifier interface {
	Notify(ctx context.Context, events []model.Event) error
}

// LogNotifier writes each event to the application log
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, events []model.Event) error {
	for _, e := range events {
		utils.Info("Auction event", map[string]any{
			"type":       e.Type,
			"auction_id": e.AuctionID,
			"bidder_id":  e.BidderID,
			"price":      e.Price.String(),
			"end_time":   e.EndTime,
		})
	}
	return nil
}

// Multi fans events out to several notifiers and joins their errors
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, events []model.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
