package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// PoolEventChannel is the Redis channel other features (leaderboard, chat,
// notifications) subscribe to for live state transitions.
const PoolEventChannel = "pool_events"

const (
	EventEntryMatched       = "entry_matched"
	EventEntryExpired       = "entry_expired"
	EventChallengeCompleted = "challenge_completed"
)

// PoolEvent is the JSON payload published on every engine state transition.
type PoolEvent struct {
	Type        string    `json:"type"`
	EntryID     string    `json:"entry_id,omitempty"`
	ChallengeID string    `json:"challenge_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	WinnerID    string    `json:"winner_id,omitempty"`
	At          time.Time `json:"at"`
}

// EventPublisher pushes lifecycle events to Redis. Publishing is
// best-effort: a nil client (Redis not configured) or a failed publish
// never blocks or fails the state transition that triggered it.
type EventPublisher struct {
	Client *redis.Client
}

func NewEventPublisher(client *redis.Client) *EventPublisher {
	return &EventPublisher{Client: client}
}

func (p *EventPublisher) Publish(ctx context.Context, event PoolEvent) {
	if p == nil || p.Client == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[EVENTS] ⚠️ Failed to marshal %s event: %v", event.Type, err)
		return
	}
	if err := p.Client.Publish(ctx, PoolEventChannel, payload).Err(); err != nil {
		log.Printf("[EVENTS] ⚠️ Failed to publish %s event: %v", event.Type, err)
	}
}
