package clients

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/threshold-secret-registry/api"
	"github.com/ruteri/threshold-secret-registry/httpserver"
	"github.com/ruteri/threshold-secret-registry/interfaces"
	"github.com/ruteri/threshold-secret-registry/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHash = interfaces.SecretHash{0xcc}

func startNode(t *testing.T) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := registry.NewEngine(registry.NewMemoryStore(), registry.NewEventLog(logger), logger)
	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		Log:                      logger,
		GracefulShutdownDuration: time.Second,
	}, httpserver.NewHandler(engine, engine.Events(), logger))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts.URL
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func newClient(t *testing.T, url string, key *ecdsa.PrivateKey) *RegistryClient {
	t.Helper()
	c, err := NewRegistryClient(url, key, 5*time.Second)
	require.NoError(t, err)
	return c
}

func TestNewRegistryClient_Signer(t *testing.T) {
	key := newKey(t)
	c, err := NewRegistryClient("http://127.0.0.1:1", key)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), c.Caller())

	readOnly, err := NewRegistryClient("http://127.0.0.1:1", nil)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ZeroAddress, readOnly.Caller())
}

func TestRegistryClient_RoundTrip(t *testing.T) {
	url := startNode(t)
	ctx := context.Background()
	ownerKey, p1Key, p2Key := newKey(t), newKey(t), newKey(t)
	owner := newClient(t, url, ownerKey)
	p1 := newClient(t, url, p1Key)
	p2 := newClient(t, url, p2Key)
	id := interfaces.SecretIDFromLabel("client")

	assert.Equal(t, crypto.PubkeyToAddress(ownerKey.PublicKey), owner.Caller())

	ev, err := owner.RegisterSecret(ctx, id, 2, []interfaces.Address{p1.Caller(), p2.Caller()}, testHash)
	require.NoError(t, err)
	assert.Equal(t, owner.Caller(), ev.Owner)
	assert.Equal(t, testHash, ev.SecretHash)

	_, err = owner.RegisterSecret(ctx, id, 2, []interfaces.Address{p1.Caller(), p2.Caller()}, testHash)
	assert.ErrorIs(t, err, interfaces.ErrAlreadyExists)

	confirmed, err := p1.ConfirmReceipt(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, p1.Caller(), confirmed.Participant)

	_, err = p1.ConfirmReceipt(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrAlreadyConfirmed)
	_, err = owner.ConfirmReceipt(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrNotParticipant)

	ok, err := owner.CanReconstruct(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = p2.ConfirmReceipt(ctx, id)
	require.NoError(t, err)

	rec, err := p1.GetSecret(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, owner.Caller(), rec.Owner)
	assert.Equal(t, uint(2), rec.Confirmations)
	assert.True(t, rec.HasConfirmed(p2.Caller()))
	assert.True(t, registry.CanReconstruct(rec))

	ok, err = p1.IsParticipant(ctx, id, p2.Caller())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = p1.HasConfirmed(ctx, id, owner.Caller())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = p1.CloseSecret(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrNotOwner)
	closed, err := owner.CloseSecret(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, closed.SecretID)

	rec, err = owner.GetSecret(ctx, id)
	require.NoError(t, err)
	assert.False(t, rec.Active)
	assert.False(t, rec.ClosedAt.IsZero())

	events, err := owner.Events(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, interfaces.EventReceiptConfirmed, events[0].Type)
	assert.Equal(t, interfaces.EventSecretClosed, events[2].Type)
}

func TestRegistryClient_Errors(t *testing.T) {
	url := startNode(t)
	ctx := context.Background()
	reader := newClient(t, url, nil)
	id := interfaces.SecretIDFromLabel("missing")

	assert.Equal(t, interfaces.ZeroAddress, reader.Caller())

	_, err := reader.GetSecret(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrUnknownSecret)

	ok, err := reader.CanReconstruct(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = reader.ConfirmReceipt(ctx, id)
	assert.ErrorIs(t, err, ErrNoSigner)

	writer := newClient(t, url, newKey(t))
	_, err = writer.RegisterSecret(ctx, id, 1, []interfaces.Address{interfaces.ZeroAddress}, testHash)
	assert.ErrorIs(t, err, interfaces.ErrZeroParticipant)
	assert.Equal(t, interfaces.KindValidation, interfaces.KindOf(err))
}

func TestRegistryClient_Unavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	client := newClient(t, ts.URL, nil)

	_, err := client.GetSecret(context.Background(), interfaces.SecretIDFromLabel("x"))
	assert.ErrorIs(t, err, interfaces.ErrLedgerUnavailable)

	ts.Close()
	_, err = client.CanReconstruct(context.Background(), interfaces.SecretIDFromLabel("x"))
	assert.ErrorIs(t, err, interfaces.ErrLedgerUnavailable)
	assert.Equal(t, interfaces.KindUnavailable, interfaces.KindOf(err))
}

func TestErrorResponseMapping(t *testing.T) {
	testCases := []struct {
		name     string
		resp     api.ErrorResponse
		status   int
		expected error
	}{
		{"known code", api.ErrorResponse{Code: "NotOwner", Message: "NotOwner"}, http.StatusForbidden, interfaces.ErrNotOwner},
		{"known code with detail", api.ErrorResponse{Code: "InvalidThreshold", Message: "M=0"}, http.StatusBadRequest, interfaces.ErrInvalidThreshold},
		{"bad signature", api.ErrorResponse{Message: "invalid request signature"}, http.StatusUnauthorized, api.ErrBadSignature},
		{"server error", api.ErrorResponse{Message: "boom"}, http.StatusInternalServerError, interfaces.ErrLedgerUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.resp.Err(tc.status), tc.expected)
		})
	}

	err := api.ErrorResponse{Message: "bad request"}.Err(http.StatusBadRequest)
	assert.Equal(t, interfaces.KindUnknown, interfaces.KindOf(err))
}
