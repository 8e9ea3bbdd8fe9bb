package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/threshold-secret-registry/interfaces"
	"github.com/ruteri/threshold-secret-registry/metrics"
)

// Engine is the registry state machine. Each mutation is validated and
// written as one SecretStore transaction; a rejected call changes nothing.
type Engine struct {
	store  interfaces.SecretStore
	events *EventLog
	log    *slog.Logger
	now    func() time.Time

	// ordering keeps store commits and event appends in the same order per secret
	ordering sync.Map
}

// NewEngine creates a state machine over store, appending transitions to events.
func NewEngine(store interfaces.SecretStore, events *EventLog, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		events: events,
		log:    logger,
		now:    time.Now,
	}
}

// WithClock replaces the timestamp source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Events exposes the engine's event log.
func (e *Engine) Events() *EventLog {
	return e.events
}

// As returns the registry bound to caller.
func (e *Engine) As(caller interfaces.Address) interfaces.SecretRegistry {
	return &session{engine: e, caller: caller}
}

// RegisterSecret creates a new active record owned by caller.
func (e *Engine) RegisterSecret(ctx context.Context, caller interfaces.Address, id interfaces.SecretID, threshold uint8, participants []interfaces.Address, secretHash interfaces.SecretHash) (ev *interfaces.SecretRegistered, err error) {
	defer observe(metrics.OpRegister, time.Now(), &err)
	unlock := e.lockOrdering(id)
	defer unlock()

	err = e.store.Update(ctx, id, func(current *interfaces.SecretRecord) (*interfaces.SecretRecord, error) {
		if current != nil {
			return nil, interfaces.ErrAlreadyExists
		}
		if err := validateRegistration(threshold, participants); err != nil {
			return nil, err
		}

		ts := e.now()
		ev = &interfaces.SecretRegistered{
			SecretID:   id,
			Owner:      caller,
			Threshold:  threshold,
			N:          uint8(len(participants)),
			SecretHash: secretHash,
			Timestamp:  ts,
		}
		return &interfaces.SecretRecord{
			ID:           id,
			Owner:        caller,
			Threshold:    threshold,
			Participants: append([]interfaces.Address(nil), participants...),
			SecretHash:   secretHash,
			Active:       true,
			Confirmed:    make(map[interfaces.Address]bool),
			RegisteredAt: ts,
		}, nil
	})
	if err != nil {
		e.log.Debug("Registration rejected", slog.String("secretId", id.String()), "err", err)
		return nil, err
	}

	metrics.ActiveSecrets.Inc()
	e.events.Append(interfaces.Event{Type: interfaces.EventSecretRegistered, Registered: ev})
	e.log.Info("Secret registered",
		slog.String("secretId", id.String()),
		slog.String("owner", caller.Hex()),
		slog.Int("m", int(threshold)),
		slog.Int("n", len(participants)))
	return ev, nil
}

// validateRegistration checks the threshold and participant set. Size and
// threshold are checked first, then each participant in order.
func validateRegistration(threshold uint8, participants []interfaces.Address) error {
	n := len(participants)
	if n == 0 {
		return fmt.Errorf("%w: no participants", interfaces.ErrInvalidThreshold)
	}
	if n > interfaces.MaxParticipants {
		return fmt.Errorf("%w: %d participants exceeds %d", interfaces.ErrInvalidThreshold, n, interfaces.MaxParticipants)
	}
	if threshold < 1 || int(threshold) > n {
		return fmt.Errorf("%w: m=%d n=%d", interfaces.ErrInvalidThreshold, threshold, n)
	}

	seen := make(map[interfaces.Address]struct{}, n)
	for _, p := range participants {
		if p == interfaces.ZeroAddress {
			return interfaces.ErrZeroParticipant
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: %s", interfaces.ErrDuplicateParticipant, p.Hex())
		}
		seen[p] = struct{}{}
	}
	return nil
}

// ConfirmReceipt records caller's acknowledgment.
func (e *Engine) ConfirmReceipt(ctx context.Context, caller interfaces.Address, id interfaces.SecretID) (ev *interfaces.ReceiptConfirmed, err error) {
	defer observe(metrics.OpConfirm, time.Now(), &err)
	unlock := e.lockOrdering(id)
	defer unlock()

	var quorum bool
	err = e.store.Update(ctx, id, func(current *interfaces.SecretRecord) (*interfaces.SecretRecord, error) {
		if current == nil {
			return nil, interfaces.ErrUnknownSecret
		}
		if !current.Active {
			return nil, interfaces.ErrNotActive
		}
		if !current.IsParticipant(caller) {
			return nil, interfaces.ErrNotParticipant
		}
		if current.HasConfirmed(caller) {
			return nil, interfaces.ErrAlreadyConfirmed
		}

		current.Confirmed[caller] = true
		current.Confirmations++
		quorum = current.Confirmations == uint(current.Threshold)

		ev = &interfaces.ReceiptConfirmed{
			SecretID:    id,
			Participant: caller,
			Timestamp:   e.now(),
		}
		return current, nil
	})
	if err != nil {
		e.log.Debug("Confirmation rejected", slog.String("secretId", id.String()), slog.String("caller", caller.Hex()), "err", err)
		return nil, err
	}

	e.events.Append(interfaces.Event{Type: interfaces.EventReceiptConfirmed, Confirmed: ev})
	e.log.Info("Receipt confirmed", slog.String("secretId", id.String()), slog.String("participant", caller.Hex()))
	if quorum {
		metrics.ReconstructableSecrets.Inc()
		e.log.Info("Reconstruction threshold reached", slog.String("secretId", id.String()))
	}
	return ev, nil
}

// CloseSecret deactivates a record. Only the owner may close, and only once.
func (e *Engine) CloseSecret(ctx context.Context, caller interfaces.Address, id interfaces.SecretID) (ev *interfaces.SecretClosed, err error) {
	defer observe(metrics.OpClose, time.Now(), &err)
	unlock := e.lockOrdering(id)
	defer unlock()

	err = e.store.Update(ctx, id, func(current *interfaces.SecretRecord) (*interfaces.SecretRecord, error) {
		if current == nil {
			return nil, interfaces.ErrUnknownSecret
		}
		if !current.Active {
			return nil, interfaces.ErrNotActive
		}
		if current.Owner != caller {
			return nil, interfaces.ErrNotOwner
		}

		ts := e.now()
		current.Active = false
		current.ClosedAt = ts
		ev = &interfaces.SecretClosed{SecretID: id, Timestamp: ts}
		return current, nil
	})
	if err != nil {
		e.log.Debug("Close rejected", slog.String("secretId", id.String()), slog.String("caller", caller.Hex()), "err", err)
		return nil, err
	}

	metrics.ActiveSecrets.Dec()
	e.events.Append(interfaces.Event{Type: interfaces.EventSecretClosed, Closed: ev})
	e.log.Info("Secret closed", slog.String("secretId", id.String()))
	return ev, nil
}

// GetSecret returns a copy of the record or ErrUnknownSecret.
func (e *Engine) GetSecret(ctx context.Context, id interfaces.SecretID) (rec *interfaces.SecretRecord, err error) {
	defer observe(metrics.OpGetSecret, time.Now(), &err)

	rec, ok, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, interfaces.ErrUnknownSecret
	}
	return rec, nil
}

func (e *Engine) lookup(ctx context.Context, id interfaces.SecretID) (*interfaces.SecretRecord, error) {
	rec, _, err := e.store.Get(ctx, id)
	return rec, err
}

func (e *Engine) CanReconstruct(ctx context.Context, id interfaces.SecretID) (ok bool, err error) {
	defer observe(metrics.OpCanReconstruct, time.Now(), &err)
	rec, err := e.lookup(ctx, id)
	if err != nil {
		return false, err
	}
	return CanReconstruct(rec), nil
}

func (e *Engine) IsParticipant(ctx context.Context, id interfaces.SecretID, addr interfaces.Address) (ok bool, err error) {
	defer observe(metrics.OpIsParticipant, time.Now(), &err)
	rec, err := e.lookup(ctx, id)
	if err != nil || rec == nil {
		return false, err
	}
	return rec.IsParticipant(addr), nil
}

func (e *Engine) HasConfirmed(ctx context.Context, id interfaces.SecretID, addr interfaces.Address) (ok bool, err error) {
	defer observe(metrics.OpHasConfirmed, time.Now(), &err)
	rec, err := e.lookup(ctx, id)
	if err != nil || rec == nil {
		return false, err
	}
	return rec.HasConfirmed(addr), nil
}

func (e *Engine) lockOrdering(id interfaces.SecretID) func() {
	v, _ := e.ordering.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func observe(operation string, start time.Time, err *error) {
	metrics.RecordOperation(operation, start, *err)
}

// session binds an Engine to one caller.
type session struct {
	engine *Engine
	caller interfaces.Address
}

func (s *session) Caller() interfaces.Address {
	return s.caller
}

func (s *session) RegisterSecret(ctx context.Context, id interfaces.SecretID, threshold uint8, participants []interfaces.Address, secretHash interfaces.SecretHash) (*interfaces.SecretRegistered, error) {
	return s.engine.RegisterSecret(ctx, s.caller, id, threshold, participants, secretHash)
}

func (s *session) ConfirmReceipt(ctx context.Context, id interfaces.SecretID) (*interfaces.ReceiptConfirmed, error) {
	return s.engine.ConfirmReceipt(ctx, s.caller, id)
}

func (s *session) CloseSecret(ctx context.Context, id interfaces.SecretID) (*interfaces.SecretClosed, error) {
	return s.engine.CloseSecret(ctx, s.caller, id)
}

func (s *session) GetSecret(ctx context.Context, id interfaces.SecretID) (*interfaces.SecretRecord, error) {
	return s.engine.GetSecret(ctx, id)
}

func (s *session) CanReconstruct(ctx context.Context, id interfaces.SecretID) (bool, error) {
	return s.engine.CanReconstruct(ctx, id)
}

func (s *session) IsParticipant(ctx context.Context, id interfaces.SecretID, addr interfaces.Address) (bool, error) {
	return s.engine.IsParticipant(ctx, id, addr)
}

func (s *session) HasConfirmed(ctx context.Context, id interfaces.SecretID, addr interfaces.Address) (bool, error) {
	return s.engine.HasConfirmed(ctx, id, addr)
}
