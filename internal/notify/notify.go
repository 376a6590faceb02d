// Package notify publishes best-effort agent status updates to external observers.
package notify

import (
	"context"

	"github.com/google/uuid"
)

// Status is the lifecycle event being reported for an agent or the whole pipeline.
type Status string

// Status constants
const (
	StatusStarted Status = "STARTED"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Message is the payload delivered to observers.
type Message struct {
	AgentName string `json:"agentName"`
	Status    Status `json:"status"`
}

// Notifier delivers status messages. Delivery is not guaranteed; callers treat
// a returned error as informational only.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, agentName string, status Status) error
}

// Subscriber streams the status messages of one user until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, userID uuid.UUID, onMsg func(Message)) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, uuid.UUID, string, Status) error { return nil }
