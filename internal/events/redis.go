package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/filepin/internal/logging"
)

// Channel is the single pub/sub channel all processes share. Workers
// publish onto it; every API process relays it to its own subscribers.
const Channel = "filepin:jobs"

// RedisBus carries events across process boundaries over Redis pub/sub.
// Publish is a plain PUBLISH of one JSON document per event; the receive
// side runs one subscription per process and fans out locally through a
// hub. Malformed payloads on the channel are dropped with a warning.
type RedisBus struct {
	rdb    *redis.Client
	hub    *hub
	logger logging.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedisBus(rdb *redis.Client, logger logging.Logger) *RedisBus {
	return &RedisBus{
		rdb:    rdb,
		hub:    newHub(),
		logger: logger.With("component", "eventbus"),
		done:   make(chan struct{}),
	}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, Channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe() (<-chan Event, func()) {
	return b.hub.subscribe()
}

// Start opens the pub/sub subscription and relays incoming events to local
// subscribers until Stop is called.
func (b *RedisBus) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	sub := b.rdb.Subscribe(ctx, Channel)

	go func() {
		defer close(b.done)
		defer sub.Close()

		b.logger.Info(ctx, "subscribed", "channel", Channel)

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ev, err := Decode([]byte(msg.Payload))
				if err != nil {
					b.logger.Warn(ctx, "dropping malformed event", "error", err.Error())
					continue
				}
				b.hub.broadcast(ev)
			}
		}
	}()
}

// Stop tears down the subscription and waits for the relay loop to exit.
func (b *RedisBus) Stop() {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
}

// Decode parses one event document off the wire. An empty type is treated
// as malformed: every legitimate publisher sets it.
func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type")
	}
	return ev, nil
}
