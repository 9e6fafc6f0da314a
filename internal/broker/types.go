package broker

import (
	"context"
	"time"
)

// Outcome is the terminal result of processing one message in a cycle.
type Outcome string

const (
	OutcomeDelivered      Outcome = "delivered"
	OutcomeSuppressed     Outcome = "suppressed"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeDeliveryFailed Outcome = "delivery_failed"
	OutcomeFailed         Outcome = "failed"
)

// OutcomeEvent describes what happened to one message. Duplicates are not published.
type OutcomeEvent struct {
	EventID        string    `json:"eventId"`
	CycleID        string    `json:"cycleId"`
	Target         string    `json:"target"`
	Outcome        Outcome   `json:"outcome"`
	IdentityKey    string    `json:"identityKey"`
	UID            uint32    `json:"uid"`
	AlertType      string    `json:"alertType,omitempty"`
	Severity       string    `json:"severity,omitempty"`
	VehicleCode    string    `json:"vehicleCode,omitempty"`
	SuppressReason string    `json:"suppressReason,omitempty"`
	Error          string    `json:"error,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

type Producer interface {
	Publish(ctx context.Context, event OutcomeEvent) error
	Close() error
}
