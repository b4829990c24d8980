package store

import (
	"context"
	"time"
)

// PendingUser is an end user waiting for approval.
type PendingUser struct {
	UserID      string    `json:"userId"`
	Channel     string    `json:"channel"`
	ChatID      string    `json:"chatId"`
	RequestedAt time.Time `json:"requestedAt"`
	Sample      string    `json:"sample,omitempty"`
}

// PairedUser is an approved end user.
type PairedUser struct {
	UserID     string    `json:"userId"`
	Channel    string    `json:"channel"`
	ApprovedBy string    `json:"approvedBy"`
	PairedAt   time.Time `json:"pairedAt"`
}

// PairingStore persists access-control state. A user id is in at most one of
// pending and paired.
type PairingStore interface {
	// AddPending records a request unless the user is already pending or paired.
	// Returns true when a new record was created.
	AddPending(ctx context.Context, p PendingUser) (bool, error)
	// Approve moves the pending record to paired in one transaction.
	// Returns ErrNotFound when no pending record exists.
	Approve(ctx context.Context, userID, approvedBy string, at time.Time) (*PendingUser, error)
	// Deny removes the pending record. Returns ErrNotFound when none exists.
	Deny(ctx context.Context, userID string) (*PendingUser, error)
	ListPending(ctx context.Context) ([]PendingUser, error)
	ListPaired(ctx context.Context) ([]PairedUser, error)
}
