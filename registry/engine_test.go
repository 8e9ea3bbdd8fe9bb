package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/threshold-secret-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ownerAddr    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	p1Addr       = common.HexToAddress("0x2000000000000000000000000000000000000002")
	p2Addr       = common.HexToAddress("0x3000000000000000000000000000000000000003")
	p3Addr       = common.HexToAddress("0x4000000000000000000000000000000000000004")
	outsiderAddr = common.HexToAddress("0x5000000000000000000000000000000000000005")
	testHash     = interfaces.SecretHash{0xaa}
)

func newTestEngine() *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fixed := time.Unix(1700000000, 0).UTC()
	return NewEngine(NewMemoryStore(), NewEventLog(logger), logger).WithClock(func() time.Time { return fixed })
}

func TestEngine_RegisterValidation(t *testing.T) {
	testCases := []struct {
		name         string
		threshold    uint8
		participants []interfaces.Address
		expected     error
	}{
		{"zero threshold", 0, []interfaces.Address{p1Addr}, interfaces.ErrInvalidThreshold},
		{"threshold above n", 2, []interfaces.Address{p1Addr}, interfaces.ErrInvalidThreshold},
		{"empty participants", 1, nil, interfaces.ErrInvalidThreshold},
		{"duplicate participant", 1, []interfaces.Address{p1Addr, p1Addr}, interfaces.ErrDuplicateParticipant},
		{"zero participant", 1, []interfaces.Address{interfaces.ZeroAddress}, interfaces.ErrZeroParticipant},
		{"too many participants", 1, make([]interfaces.Address, 256), interfaces.ErrInvalidThreshold},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestEngine()
			id := interfaces.SecretIDFromLabel(tc.name)

			_, err := engine.As(ownerAddr).RegisterSecret(context.Background(), id, tc.threshold, tc.participants, testHash)
			assert.ErrorIs(t, err, tc.expected)

			_, err = engine.GetSecret(context.Background(), id)
			assert.ErrorIs(t, err, interfaces.ErrUnknownSecret, "rejected registration must leave no record")

			events, err := engine.Events().Events(context.Background(), 0)
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestEngine_AlreadyExists(t *testing.T) {
	engine := newTestEngine()
	ctx := context.Background()
	id := interfaces.SecretIDFromLabel("same")
	owner := engine.As(ownerAddr)

	_, err := owner.RegisterSecret(ctx, id, 1, []interfaces.Address{p1Addr}, testHash)
	require.NoError(t, err)
	before, err := owner.GetSecret(ctx, id)
	require.NoError(t, err)

	_, err = engine.As(p2Addr).RegisterSecret(ctx, id, 2, []interfaces.Address{p2Addr, p3Addr}, interfaces.SecretHash{0xbb})
	assert.ErrorIs(t, err, interfaces.ErrAlreadyExists)

	after, err := owner.GetSecret(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEngine_ConfirmAndQuorum(t *testing.T) {
	engine := newTestEngine()
	ctx := context.Background()
	id := interfaces.SecretIDFromLabel("wallet-backup")
	participants := []interfaces.Address{p1Addr, p2Addr, p3Addr}

	ev, err := engine.As(ownerAddr).RegisterSecret(ctx, id, 2, participants, testHash)
	require.NoError(t, err)
	assert.Equal(t, &interfaces.SecretRegistered{
		SecretID:   id,
		Owner:      ownerAddr,
		Threshold:  2,
		N:          3,
		SecretHash: testHash,
		Timestamp:  time.Unix(1700000000, 0).UTC(),
	}, ev)

	ok, err := engine.CanReconstruct(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	confirmed, err := engine.As(p1Addr).ConfirmReceipt(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, p1Addr, confirmed.Participant)

	ok, err = engine.CanReconstruct(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "one of two confirmations")

	_, err = engine.As(p1Addr).ConfirmReceipt(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrAlreadyConfirmed)
	rec, err := engine.GetSecret(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint(1), rec.Confirmations, "double confirm must not count")

	_, err = engine.As(outsiderAddr).ConfirmReceipt(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrNotParticipant)

	_, err = engine.As(p3Addr).ConfirmReceipt(ctx, id)
	require.NoError(t, err)

	ok, err = engine.CanReconstruct(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok, "flips exactly at the threshold")

	has, err := engine.HasConfirmed(ctx, id, p3Addr)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = engine.HasConfirmed(ctx, id, p2Addr)
	require.NoError(t, err)
	assert.False(t, has)

	// Confirmations past the threshold are still recorded.
	_, err = engine.As(p2Addr).ConfirmReceipt(ctx, id)
	require.NoError(t, err)
	rec, err = engine.GetSecret(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint(3), rec.Confirmations)
}

func TestEngine_Close(t *testing.T) {
	engine := newTestEngine()
	ctx := context.Background()
	id := interfaces.SecretIDFromLabel("close")

	_, err := engine.As(ownerAddr).RegisterSecret(ctx, id, 1, []interfaces.Address{p1Addr, p2Addr}, testHash)
	require.NoError(t, err)
	_, err = engine.As(p1Addr).ConfirmReceipt(ctx, id)
	require.NoError(t, err)

	ok, err := engine.CanReconstruct(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = engine.As(p1Addr).CloseSecret(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrNotOwner)

	closed, err := engine.As(ownerAddr).CloseSecret(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, closed.SecretID)

	rec, err := engine.GetSecret(ctx, id)
	require.NoError(t, err)
	assert.False(t, rec.Active)
	assert.Equal(t, uint(1), rec.Confirmations, "count frozen after close")

	ok, err = engine.CanReconstruct(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = engine.As(p2Addr).ConfirmReceipt(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrNotActive)

	_, err = engine.As(ownerAddr).CloseSecret(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrNotActive)

	_, err = engine.As(ownerAddr).RegisterSecret(ctx, id, 1, []interfaces.Address{p1Addr}, testHash)
	assert.ErrorIs(t, err, interfaces.ErrAlreadyExists, "closed ids are never reused")
}

func TestEngine_UnknownSecret(t *testing.T) {
	engine := newTestEngine()
	ctx := context.Background()
	id := interfaces.SecretIDFromLabel("unknown")

	_, err := engine.GetSecret(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrUnknownSecret)

	ok, err := engine.CanReconstruct(ctx, id)
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = engine.IsParticipant(ctx, id, interfaces.ZeroAddress)
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = engine.HasConfirmed(ctx, id, interfaces.ZeroAddress)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = engine.As(p1Addr).ConfirmReceipt(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrUnknownSecret)

	_, err = engine.As(ownerAddr).CloseSecret(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrUnknownSecret)
}

func TestEngine_ReturnedRecordIsACopy(t *testing.T) {
	engine := newTestEngine()
	ctx := context.Background()
	id := interfaces.SecretIDFromLabel("copy")

	participants := []interfaces.Address{p1Addr, p2Addr}
	_, err := engine.As(ownerAddr).RegisterSecret(ctx, id, 1, participants, testHash)
	require.NoError(t, err)
	participants[0] = outsiderAddr

	rec, err := engine.GetSecret(ctx, id)
	require.NoError(t, err)
	rec.Participants[1] = outsiderAddr
	rec.Confirmed[outsiderAddr] = true

	ok, err := engine.IsParticipant(ctx, id, outsiderAddr)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = engine.HasConfirmed(ctx, id, outsiderAddr)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_ConcurrentConfirmations(t *testing.T) {
	engine := newTestEngine()
	ctx := context.Background()
	id := interfaces.SecretIDFromLabel("concurrent")

	participants := make([]interfaces.Address, 50)
	for i := range participants {
		participants[i] = common.BigToAddress(big.NewInt(int64(i + 100)))
	}
	_, err := engine.As(ownerAddr).RegisterSecret(ctx, id, 25, participants, testHash)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	rejected := 0
	for _, p := range participants {
		for attempt := 0; attempt < 2; attempt++ {
			wg.Add(1)
			go func(p interfaces.Address) {
				defer wg.Done()
				if _, err := engine.As(p).ConfirmReceipt(ctx, id); err != nil {
					mu.Lock()
					defer mu.Unlock()
					assert.True(t, errors.Is(err, interfaces.ErrAlreadyConfirmed))
					rejected++
				}
			}(p)
		}
	}
	wg.Wait()

	rec, err := engine.GetSecret(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint(50), rec.Confirmations)
	assert.Equal(t, 50, rejected)

	events, err := engine.Events().Events(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 51)
	for i, ev := range events {
		assert.Equal(t, uint64(i), ev.Seq)
	}
}

// Scenario: 2-of-3, two confirmations, close.
func TestEngine_ScenarioTwoOfThree(t *testing.T) {
	engine := newTestEngine()
	ctx := context.Background()
	id := interfaces.SecretIDFromLabel("scenario-2-of-3")

	_, err := engine.As(ownerAddr).RegisterSecret(ctx, id, 2, []interfaces.Address{p1Addr, p2Addr, p3Addr}, testHash)
	require.NoError(t, err)
	_, err = engine.As(p1Addr).ConfirmReceipt(ctx, id)
	require.NoError(t, err)
	_, err = engine.As(p2Addr).ConfirmReceipt(ctx, id)
	require.NoError(t, err)

	ok, err := engine.CanReconstruct(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = engine.As(ownerAddr).CloseSecret(ctx, id)
	require.NoError(t, err)

	ok, err = engine.CanReconstruct(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	events, err := engine.Events().Events(ctx, 0)
	require.NoError(t, err)
	types := make([]interfaces.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
		assert.Equal(t, id, ev.SecretID())
	}
	assert.Equal(t, []interfaces.EventType{
		interfaces.EventSecretRegistered,
		interfaces.EventReceiptConfirmed,
		interfaces.EventReceiptConfirmed,
		interfaces.EventSecretClosed,
	}, types)
}

type failingStore struct {
	interfaces.SecretStore
	err error
}

func (s *failingStore) Get(ctx context.Context, id interfaces.SecretID) (*interfaces.SecretRecord, bool, error) {
	return nil, false, s.err
}

func (s *failingStore) Update(ctx context.Context, id interfaces.SecretID, fn func(*interfaces.SecretRecord) (*interfaces.SecretRecord, error)) error {
	return s.err
}

func TestEngine_StoreFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	storeErr := fmt.Errorf("%w: disk gone", interfaces.ErrLedgerUnavailable)
	engine := NewEngine(&failingStore{err: storeErr}, NewEventLog(logger), logger)
	ctx := context.Background()
	id := interfaces.SecretIDFromLabel("x")

	_, err := engine.As(ownerAddr).RegisterSecret(ctx, id, 1, []interfaces.Address{p1Addr}, testHash)
	assert.ErrorIs(t, err, interfaces.ErrLedgerUnavailable)

	_, err = engine.CanReconstruct(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrLedgerUnavailable, "boolean queries surface transport failures")

	events, err := engine.Events().Events(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCanReconstructGate(t *testing.T) {
	assert.False(t, CanReconstruct(nil))
	assert.False(t, CanReconstruct(&interfaces.SecretRecord{Threshold: 1, Confirmations: 1}))
	assert.False(t, CanReconstruct(&interfaces.SecretRecord{Threshold: 2, Confirmations: 1, Active: true}))
	assert.True(t, CanReconstruct(&interfaces.SecretRecord{Threshold: 2, Confirmations: 2, Active: true}))
	assert.True(t, CanReconstruct(&interfaces.SecretRecord{Threshold: 2, Confirmations: 3, Active: true}))
}
