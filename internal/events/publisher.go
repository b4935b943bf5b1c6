// Package events fans committed ticket transitions out to family dashboards
// over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/reward-ticket-service/pkg/cache"
)

// TicketEvent describes one committed ticket transition.
type TicketEvent struct {
	ID             string    `json:"event_id"`
	Type           string    `json:"type"`
	PurchaseID     string    `json:"purchase_id"`
	FamilyID       string    `json:"family_id"`
	ChildID        string    `json:"child_id"`
	Status         string    `json:"status"`
	Paused         bool      `json:"paused"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewTicketEvent stamps a fresh event id.
func NewTicketEvent(eventType, purchaseID, familyID, childID, status string, paused bool, elapsed int, at time.Time) TicketEvent {
	return TicketEvent{
		ID:             uuid.NewString(),
		Type:           eventType,
		PurchaseID:     purchaseID,
		FamilyID:       familyID,
		ChildID:        childID,
		Status:         status,
		Paused:         paused,
		ElapsedSeconds: elapsed,
		OccurredAt:     at.UTC(),
	}
}

// FamilyChannel returns "family:{familyID}:tickets".
func FamilyChannel(familyID string) string {
	return cache.NamespaceKey("family", familyID+":tickets")
}

// PublisherClient is the subset of *redis.Client used for publishing.
type PublisherClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes ticket events on per-family channels.
type RedisPublisher struct {
	client PublisherClient
}

// NewRedisPublisher creates a RedisPublisher backed by the given client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// NewRedisPublisherWithClient creates a RedisPublisher with a custom client.
// This is primarily used for testing.
func NewRedisPublisherWithClient(client PublisherClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish sends ev to its family's channel.
func (p *RedisPublisher) Publish(ctx context.Context, ev TicketEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal ticket event: %w", err)
	}
	if err := p.client.Publish(ctx, FamilyChannel(ev.FamilyID), payload).Err(); err != nil {
		return fmt.Errorf("publish ticket event %s: %w", ev.ID, err)
	}
	return nil
}

// NoopPublisher drops every event. Used when fan-out is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, TicketEvent) error { return nil }
