package client

import (
	"context"
	"errors"

	"github.com/ruteri/threshold-secret-registry/interfaces"
	"github.com/ruteri/threshold-secret-registry/registry"
)

// Availability tells whether a status view reflects ledger state.
type Availability int

const (
	// Unknown means the ledger could not be read; the view carries the error.
	Unknown Availability = iota
	// Known means the secret exists and the view is populated.
	Known
	// NotFound means the ledger answered that no such secret exists.
	NotFound
)

func (a Availability) String() string {
	switch a {
	case Known:
		return "known"
	case NotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// StatusView is one secret as seen by the client's identity.
type StatusView struct {
	SecretID     interfaces.SecretID
	Availability Availability
	Caller       interfaces.Address

	// Set when Availability is Known.
	Record         *interfaces.SecretRecord
	IsParticipant  bool
	HasConfirmed   bool
	IsOwner        bool
	CanReconstruct bool

	// Pending is true while the caller has a write in flight for the secret.
	Pending bool

	// Err is the read failure when Availability is Unknown.
	Err error
}

// Remaining returns how many more confirmations the quorum needs.
func (v *StatusView) Remaining() int {
	if v.Record == nil {
		return 0
	}
	left := int(v.Record.Threshold) - int(v.Record.Confirmations)
	if left < 0 {
		return 0
	}
	return left
}

// Status reads the secret and the caller's relation to it. It never fails:
// an unreachable ledger yields an Unknown view.
func (c *Client) Status(ctx context.Context, id interfaces.SecretID) StatusView {
	caller := c.registry.Caller()
	view := StatusView{
		SecretID: id,
		Caller:   caller,
		Pending:  c.IsPending(id),
	}

	rec, err := c.registry.GetSecret(ctx, id)
	if errors.Is(err, interfaces.ErrUnknownSecret) {
		view.Availability = NotFound
		return view
	}
	if err != nil {
		view.Err = err
		return view
	}

	if caller != interfaces.ZeroAddress {
		if view.IsParticipant, err = c.registry.IsParticipant(ctx, id, caller); err != nil {
			view.Err = err
			return view
		}
		if view.IsParticipant {
			if view.HasConfirmed, err = c.registry.HasConfirmed(ctx, id, caller); err != nil {
				view.Err = err
				return view
			}
		}
		view.IsOwner = rec.Owner == caller
	}

	view.Availability = Known
	view.Record = rec
	view.CanReconstruct = registry.CanReconstruct(rec)
	return view
}
