package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel carries pushes between instances.
const DefaultChannel = "earnhub:realtime"

// RedisPublisher is the publishing half of *redis.Client.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// envelope is the wire form of a push on the shared channel. A nil UserID
// addresses every connected admin.
type envelope struct {
	UserID *uuid.UUID      `json:"user_id,omitempty"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// RedisBridge fans pushes out through Redis so that a user connected to any
// instance receives them. Each instance runs Run to deliver into its Hub.
type RedisBridge struct {
	pub     RedisPublisher
	hub     *Hub
	channel string
	log     *slog.Logger
}

func NewRedisBridge(pub RedisPublisher, hub *Hub, channel string, log *slog.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisBridge{pub: pub, hub: hub, channel: channel, log: log}
}

func (b *RedisBridge) Push(ctx context.Context, userID uuid.UUID, msg Message) error {
	return b.publish(ctx, &userID, msg)
}

func (b *RedisBridge) PushAdmins(ctx context.Context, msg Message) error {
	return b.publish(ctx, nil, msg)
}

func (b *RedisBridge) publish(ctx context.Context, userID *uuid.UUID, msg Message) error {
	env := envelope{UserID: userID, Type: msg.Type}
	if msg.Data != nil {
		data, err := json.Marshal(msg.Data)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", msg.Type, err)
		}
		env.Data = data
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := b.pub.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	return nil
}

// Deliver hands one channel payload to the local hub.
func (b *RedisBridge) Deliver(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.log.Warn("realtime bridge: bad payload", "error", err)
		return
	}
	msg := Message{Type: env.Type}
	if len(env.Data) > 0 {
		msg.Data = env.Data
	}
	if env.UserID != nil {
		b.hub.SendToUser(*env.UserID, msg)
		return
	}
	_ = b.hub.PushAdmins(context.Background(), msg)
}

// Run subscribes to the channel and delivers until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context, rdb *redis.Client) error {
	sub := rdb.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.log.Info("realtime bridge subscribed", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			b.Deliver(m.Payload)
		}
	}
}
