package interfaces

import (
	"context"
)

// SecretReader answers queries about registered secrets. Queries never mutate state.
//
// The boolean queries return false for unknown ids or addresses; their error
// only reports a failure to reach the ledger.
type SecretReader interface {
	// GetSecret returns the record or ErrUnknownSecret.
	GetSecret(ctx context.Context, id SecretID) (*SecretRecord, error)
	CanReconstruct(ctx context.Context, id SecretID) (bool, error)
	IsParticipant(ctx context.Context, id SecretID, addr Address) (bool, error)
	HasConfirmed(ctx context.Context, id SecretID, addr Address) (bool, error)
}

// SecretRegistry is the registry as seen by one authenticated caller.
type SecretRegistry interface {
	SecretReader

	// RegisterSecret creates the record with the caller as owner.
	RegisterSecret(ctx context.Context, id SecretID, threshold uint8, participants []Address, secretHash SecretHash) (*SecretRegistered, error)

	// ConfirmReceipt records that the caller holds its share.
	ConfirmReceipt(ctx context.Context, id SecretID) (*ReceiptConfirmed, error)

	// CloseSecret deactivates the record. Owner only.
	CloseSecret(ctx context.Context, id SecretID) (*SecretClosed, error)

	// Caller returns the identity used for mutations.
	Caller() Address
}

// EventSource exposes the registry's append-only event log.
type EventSource interface {
	// Events returns events with sequence number >= from, in order.
	Events(ctx context.Context, from uint64) ([]Event, error)
}

// SecretStore persists records. Update runs fn against the current record
// (nil if absent) as one atomic transaction: if fn returns an error nothing
// is written.
type SecretStore interface {
	Get(ctx context.Context, id SecretID) (*SecretRecord, bool, error)
	Update(ctx context.Context, id SecretID, fn func(current *SecretRecord) (*SecretRecord, error)) error
}
