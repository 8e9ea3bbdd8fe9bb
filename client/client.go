package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/threshold-secret-registry/bundle"
	"github.com/ruteri/threshold-secret-registry/interfaces"
)

// ErrSubmissionPending is returned when the caller already has a mutating
// call in flight for the same secret.
var ErrSubmissionPending = errors.New("submission already pending")

// ErrNoEventSource is returned by Events and Follow when the client was
// created without an event source.
var ErrNoEventSource = errors.New("no event source configured")

// Pending is an in-flight ledger write. The write keeps running when the
// waiter gives up.
type Pending[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// Done is closed once the write landed or failed.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the write completes or ctx is done. Abandoning the wait
// does not cancel the write; its outcome must be read back from the ledger.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

type submissionKey struct {
	id     interfaces.SecretID
	caller interfaces.Address
}

// Client orchestrates an identity's calls to the registry and composes
// status views. It allows one mutating call per secret at a time.
type Client struct {
	registry interfaces.SecretRegistry
	events   interfaces.EventSource
	log      *slog.Logger

	mu       sync.Mutex
	inflight map[submissionKey]string
}

// New creates a client over registry. events may be nil.
func New(registry interfaces.SecretRegistry, events interfaces.EventSource, logger *slog.Logger) *Client {
	return &Client{
		registry: registry,
		events:   events,
		log:      logger,
		inflight: make(map[submissionKey]string),
	}
}

// Caller returns the identity the client submits as.
func (c *Client) Caller() interfaces.Address {
	return c.registry.Caller()
}

// SecretIDForLabel derives the registry identifier of a label.
func SecretIDForLabel(label string) interfaces.SecretID {
	return interfaces.SecretIDFromLabel(label)
}

func (c *Client) SubmitRegister(ctx context.Context, id interfaces.SecretID, threshold uint8, participants []interfaces.Address, secretHash interfaces.SecretHash) (*Pending[*interfaces.SecretRegistered], error) {
	participants = append([]interfaces.Address(nil), participants...)
	return submit(c, ctx, id, "register", func(ctx context.Context) (*interfaces.SecretRegistered, error) {
		return c.registry.RegisterSecret(ctx, id, threshold, participants, secretHash)
	})
}

func (c *Client) SubmitConfirm(ctx context.Context, id interfaces.SecretID) (*Pending[*interfaces.ReceiptConfirmed], error) {
	return submit(c, ctx, id, "confirm", func(ctx context.Context) (*interfaces.ReceiptConfirmed, error) {
		return c.registry.ConfirmReceipt(ctx, id)
	})
}

func (c *Client) SubmitClose(ctx context.Context, id interfaces.SecretID) (*Pending[*interfaces.SecretClosed], error) {
	return submit(c, ctx, id, "close", func(ctx context.Context) (*interfaces.SecretClosed, error) {
		return c.registry.CloseSecret(ctx, id)
	})
}

// Register submits a registration and waits for it.
func (c *Client) Register(ctx context.Context, id interfaces.SecretID, threshold uint8, participants []interfaces.Address, secretHash interfaces.SecretHash) (*interfaces.SecretRegistered, error) {
	p, err := c.SubmitRegister(ctx, id, threshold, participants, secretHash)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// RegisterBundle registers the metadata of an assembled bundle. Only the
// identifier, threshold, participants and commitment leave the process.
// A partial bundle is registered with all its participants as long as enough
// shares were delivered to reach the threshold.
func (c *Client) RegisterBundle(ctx context.Context, b *bundle.ShareBundle) (*interfaces.SecretRegistered, error) {
	if !b.Complete() {
		if b.Delivered() < int(b.Threshold()) {
			return nil, fmt.Errorf("%w: %d of %d shares delivered, threshold is %d", bundle.ErrIncompleteBundle, b.Delivered(), b.N(), b.Threshold())
		}
		c.log.Warn("Registering a partially delivered bundle",
			"secretId", b.SecretID().String(),
			"delivered", b.Delivered(),
			"n", b.N())
	}
	return c.Register(ctx, b.SecretID(), b.Threshold(), b.Participants(), b.SecretHash())
}

func (c *Client) Confirm(ctx context.Context, id interfaces.SecretID) (*interfaces.ReceiptConfirmed, error) {
	p, err := c.SubmitConfirm(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

func (c *Client) Close(ctx context.Context, id interfaces.SecretID) (*interfaces.SecretClosed, error) {
	p, err := c.SubmitClose(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// IsPending reports whether the caller has a mutating call in flight for id.
func (c *Client) IsPending(id interfaces.SecretID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[submissionKey{id: id, caller: c.registry.Caller()}]
	return ok
}

func submit[T any](c *Client, ctx context.Context, id interfaces.SecretID, op string, write func(context.Context) (T, error)) (*Pending[T], error) {
	key := submissionKey{id: id, caller: c.registry.Caller()}

	c.mu.Lock()
	if prev, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s for %s", ErrSubmissionPending, prev, id.String())
	}
	c.inflight[key] = op
	c.mu.Unlock()

	log := c.log.With(slog.String("op", op), slog.String("secretId", id.String()), slog.String("caller", key.caller.Hex()))
	log.Debug("Submitting ledger write")

	p := &Pending[T]{done: make(chan struct{})}
	writeCtx := context.WithoutCancel(ctx)
	go func() {
		start := time.Now()
		p.result, p.err = write(writeCtx)

		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
		close(p.done)

		if p.err != nil {
			log.Info("Ledger write rejected", "err", p.err, "duration", time.Since(start))
			return
		}
		log.Info("Ledger write landed", "duration", time.Since(start))
	}()
	return p, nil
}

// Events returns the registry events with sequence number >= from.
func (c *Client) Events(ctx context.Context, from uint64) ([]interfaces.Event, error) {
	if c.events == nil {
		return nil, ErrNoEventSource
	}
	return c.events.Events(ctx, from)
}

// Follow polls the event source every interval and delivers new events in
// order until ctx is done. Poll failures are logged and retried.
func (c *Client) Follow(ctx context.Context, from uint64, interval time.Duration) (<-chan interfaces.Event, error) {
	if c.events == nil {
		return nil, ErrNoEventSource
	}

	out := make(chan interfaces.Event)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		next := from
		for {
			events, err := c.events.Events(ctx, next)
			if err != nil && ctx.Err() == nil {
				c.log.Warn("Failed to poll registry events", "err", err, "from", next)
			}
			// on-chain sequence numbers are block numbers and repeat within a block
			floor := next
			for _, ev := range events {
				if ev.Seq < floor {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Seq >= next {
					next = ev.Seq + 1
				}
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
