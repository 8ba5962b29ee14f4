// Package events publishes provisioning lifecycle events for downstream
// consumers (indexers, analytics, notification fan-out).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// ProvisionedTopic carries events for successfully provisioned accounts.
	ProvisionedTopic = "account.provisioned"

	// LogoutTopic carries session logout events.
	LogoutTopic = "session.logout"
)

// ProvisionedEvent is published once per successful registration flow, after
// the local session commit.
type ProvisionedEvent struct {
	Username string `json:"username"`
	Address  string `json:"address"`
	ChainID  uint64 `json:"chain_id"`
	FlowID   string `json:"flow_id"`
}

// LogoutEvent is published when a local session is explicitly cleared.
type LogoutEvent struct {
	Origin   string `json:"origin"`
	Username string `json:"username"`
	Address  string `json:"address"`
}

// Publisher is the interface the orchestrator publishes through.
type Publisher interface {
	PublishProvisioned(ctx context.Context, event ProvisionedEvent) error
	PublishLogout(ctx context.Context, event LogoutEvent) error
}

// WatermillPublisher implements Publisher on top of a watermill
// message.Publisher.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher wraps a watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishProvisioned publishes a ProvisionedEvent to ProvisionedTopic.
func (p *WatermillPublisher) PublishProvisioned(ctx context.Context, event ProvisionedEvent) error {
	return p.publish(ProvisionedTopic, event)
}

// PublishLogout publishes a LogoutEvent to LogoutTopic.
func (p *WatermillPublisher) PublishLogout(ctx context.Context, event LogoutEvent) error {
	return p.publish(LogoutTopic, event)
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("could not publish to %s: %w", topic, err)
	}
	return nil
}

// NewRedisPublisher creates a Redis Streams backed watermill publisher,
// sharing the client with the Redis session store when both are configured.
func NewRedisPublisher(client redis.UniversalClient, log *slog.Logger) (message.Publisher, error) {
	return redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, watermill.NewSlogLogger(log))
}

// NewInProcessPublisher creates an in-process channel publisher, used when no
// broker is configured and in tests.
func NewInProcessPublisher(log *slog.Logger) message.Publisher {
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(log))
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) PublishProvisioned(ctx context.Context, event ProvisionedEvent) error {
	return nil
}

func (NopPublisher) PublishLogout(ctx context.Context, event LogoutEvent) error {
	return nil
}
