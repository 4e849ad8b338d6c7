package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/stickerbook/trade-engine/internal/domain/trade"
)

// RedisBridge publishes events to a per-trade channel and relays every trade
// channel back into the local hub, so a participant connected to any instance
// receives the event exactly once.
type RedisBridge struct {
	client *redis.Client
	prefix string
	hub    *Hub
}

func NewRedisBridge(client *redis.Client, prefix string, hub *Hub) *RedisBridge {
	return &RedisBridge{client: client, prefix: prefix, hub: hub}
}

func (b *RedisBridge) channel(tradeID string) string {
	return b.prefix + tradeID
}

func (b *RedisBridge) Publish(ctx context.Context, ev trade.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Kind, err)
	}
	if err := b.client.Publish(ctx, b.channel(ev.TradeID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Run relays subscribed events until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s*: %w", b.prefix, err)
	}
	slog.Info("Relaying trade events from redis",
		slog.String("type", "sys"),
		slog.String("pattern", b.prefix+"*"),
	)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.relay(ctx, msg.Channel, msg.Payload)
		}
	}
}

func (b *RedisBridge) relay(ctx context.Context, channel, payload string) {
	var ev trade.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		slog.Warn("Discarding malformed trade event",
			slog.String("type", "sys"),
			slog.String("channel", channel),
			slog.Any("error", err),
		)
		return
	}
	if err := b.hub.Publish(ctx, ev); err != nil {
		slog.Warn("Failed to relay trade event",
			slog.String("type", "sys"),
			slog.String("trade_id", ev.TradeID),
			slog.Any("error", err),
		)
	}
}

var _ trade.Notifier = (*RedisBridge)(nil)
