package notify

import (
	model "auction-engine/internal/models"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// eventMessage is the stream payload. Prices travel as strings so no
// precision is lost on the way to consumers.
type eventMessage struct {
	Type       string    `msgpack:"type"`
	AuctionID  string    `msgpack:"auction_id"`
	BidderID   string    `msgpack:"bidder_id"`
	Price      string    `msgpack:"price"`
	EndTime    time.Time `msgpack:"end_time"`
	OccurredAt time.Time `msgpack:"occurred_at"`
}

// RedisNotifier appends events to a Redis stream, one entry per event
type RedisNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisNotifier publishes to stream. maxLen > 0 caps the stream length approximately.
func NewRedisNotifier(client *redis.Client, stream string, maxLen int64) (*RedisNotifier, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}
	return &RedisNotifier{client: client, stream: stream, maxLen: maxLen}, nil
}

// Notify writes all events in one pipeline
func (n *RedisNotifier) Notify(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	pipe := n.client.Pipeline()
	for _, e := range events {
		values, err := EncodeEvent(e)
		if err != nil {
			return err
		}
		args := &redis.XAddArgs{Stream: n.stream, Values: values}
		if n.maxLen > 0 {
			args.MaxLen = n.maxLen
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %d events to %s: %w", len(events), n.stream, err)
	}
	return nil
}

// EncodeEvent turns an event into stream field values. The event type and
// auction id are kept in the clear for consumers that filter without decoding.
func EncodeEvent(e model.Event) (map[string]any, error) {
	bytes, err := msgpack.Marshal(eventMessage{
		Type:       string(e.Type),
		AuctionID:  e.AuctionID,
		BidderID:   e.BidderID,
		Price:      e.Price.String(),
		EndTime:    e.EndTime,
		OccurredAt: e.OccurredAt,
	})
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}

	return map[string]any{
		"type":       string(e.Type),
		"auction_id": e.AuctionID,
		"data":       base64.StdEncoding.EncodeToString(bytes),
	}, nil
}

// DecodeEvent is the inverse of EncodeEvent
func DecodeEvent(values map[string]any) (model.Event, error) {
	data, ok := values["data"].(string)
	if !ok {
		return model.Event{}, errors.New("data field not found or invalid type")
	}
	bytes, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return model.Event{}, fmt.Errorf("base64 decode error: %w", err)
	}

	var msg eventMessage
	if err := msgpack.Unmarshal(bytes, &msg); err != nil {
		return model.Event{}, fmt.Errorf("msgpack unmarshal error: %w", err)
	}
	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		return model.Event{}, fmt.Errorf("invalid price %q: %w", msg.Price, err)
	}

	return model.Event{
		Type:       model.EventType(msg.Type),
		AuctionID:  msg.AuctionID,
		BidderID:   msg.BidderID,
		Price:      price,
		EndTime:    msg.EndTime.UTC(),
		OccurredAt: msg.OccurredAt.UTC(),
	}, nil
}
