package httpserver

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/flashbots/go-utils/signature"
	"github.com/ruteri/threshold-secret-registry/api"
	"github.com/ruteri/threshold-secret-registry/interfaces"
	"github.com/ruteri/threshold-secret-registry/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHash = interfaces.SecretHash{0xbb}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := registry.NewEngine(registry.NewMemoryStore(), registry.NewEventLog(logger), logger)

	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      logger,
		DrainDuration:            time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, NewHandler(engine, engine.Events(), logger))
	require.NoError(t, err)
	return srv
}

func newSigner(t *testing.T) *signature.Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := signature.NewSignerFromHexPrivateKey("0x" + hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)
	return signer
}

func signedPost(t *testing.T, router http.Handler, path string, signer *signature.Signer, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	if signer != nil {
		sig, err := signer.Create(payload)
		require.NoError(t, err)
		req.Header.Set(api.SignatureHeader, sig)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decodeErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func TestSecretLifecycle(t *testing.T) {
	router := newTestServer(t).Router()
	owner, p1, p2, p3 := newSigner(t), newSigner(t), newSigner(t), newSigner(t)
	id := interfaces.SecretIDFromLabel("lifecycle")
	base := "/api/v1/secrets/" + id.String()

	rr := signedPost(t, router, "/api/v1/secrets", owner, api.RegisterRequest{
		SecretID:     id,
		M:            2,
		Participants: []interfaces.Address{p1.Address(), p2.Address(), p3.Address()},
		SecretHash:   testHash,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var registered interfaces.SecretRegistered
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &registered))
	assert.Equal(t, owner.Address(), registered.Owner)
	assert.Equal(t, uint8(3), registered.N)

	rr = signedPost(t, router, base+"/confirm", p2, api.SecretRequest{SecretID: id})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = get(router, base+"/can_reconstruct")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"can_reconstruct":false}`, rr.Body.String())

	rr = signedPost(t, router, base+"/confirm", p1, api.SecretRequest{SecretID: id})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = get(router, base+"/can_reconstruct")
	assert.JSONEq(t, `{"can_reconstruct":true}`, rr.Body.String())

	rr = get(router, base)
	require.Equal(t, http.StatusOK, rr.Code)
	var info api.SecretInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Equal(t, owner.Address(), info.Owner)
	assert.Equal(t, uint(2), info.Confirmations)
	assert.Equal(t, []interfaces.Address{p1.Address(), p2.Address()}, info.Confirmed)
	assert.True(t, info.Active)
	assert.True(t, info.CanReconstruct)
	assert.Nil(t, info.ClosedAt)

	rr = get(router, base+"/participants/"+p3.Address().Hex())
	assert.JSONEq(t, `{"is_participant":true,"has_confirmed":false}`, rr.Body.String())
	rr = get(router, base+"/participants/"+owner.Address().Hex())
	assert.JSONEq(t, `{"is_participant":false,"has_confirmed":false}`, rr.Body.String())

	rr = signedPost(t, router, base+"/close", p1, api.SecretRequest{SecretID: id})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "NotOwner", decodeErrorResponse(t, rr).Code)

	rr = signedPost(t, router, base+"/close", owner, api.SecretRequest{SecretID: id})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = signedPost(t, router, base+"/confirm", p3, api.SecretRequest{SecretID: id})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "NotActive", decodeErrorResponse(t, rr).Code)

	rr = get(router, base+"/can_reconstruct")
	assert.JSONEq(t, `{"can_reconstruct":false}`, rr.Body.String())
}

func TestSignatureRequired(t *testing.T) {
	router := newTestServer(t).Router()
	owner := newSigner(t)
	body := api.RegisterRequest{
		SecretID:     interfaces.SecretIDFromLabel("unsigned"),
		M:            1,
		Participants: []interfaces.Address{owner.Address()},
		SecretHash:   testHash,
	}

	rr := signedPost(t, router, "/api/v1/secrets", nil, body)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// signature over a different body
	signed, err := json.Marshal(body)
	require.NoError(t, err)
	sig, err := owner.Create(signed)
	require.NoError(t, err)
	body.M = 2
	tampered, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/secrets", bytes.NewReader(tampered))
	req.Header.Set(api.SignatureHeader, sig)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = get(router, "/api/v1/secrets/"+body.SecretID.String())
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRejections(t *testing.T) {
	router := newTestServer(t).Router()
	owner, p1, outsider := newSigner(t), newSigner(t), newSigner(t)
	id := interfaces.SecretIDFromLabel("rejections")
	base := "/api/v1/secrets/" + id.String()

	register := func(participants ...interfaces.Address) *httptest.ResponseRecorder {
		return signedPost(t, router, "/api/v1/secrets", owner, api.RegisterRequest{
			SecretID: id, M: 1, Participants: participants, SecretHash: testHash,
		})
	}

	rr := register(p1.Address(), p1.Address())
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "DuplicateParticipant", decodeErrorResponse(t, rr).Code)
	assert.Equal(t, interfaces.KindValidation, decodeErrorResponse(t, rr).Kind)

	rr = register(interfaces.ZeroAddress)
	assert.Equal(t, "ZeroParticipant", decodeErrorResponse(t, rr).Code)

	rr = register()
	assert.Equal(t, "InvalidThreshold", decodeErrorResponse(t, rr).Code)

	require.Equal(t, http.StatusOK, register(p1.Address()).Code)
	rr = register(p1.Address())
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "AlreadyExists", decodeErrorResponse(t, rr).Code)

	rr = signedPost(t, router, base+"/confirm", outsider, api.SecretRequest{SecretID: id})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "NotParticipant", decodeErrorResponse(t, rr).Code)

	require.Equal(t, http.StatusOK, signedPost(t, router, base+"/confirm", p1, api.SecretRequest{SecretID: id}).Code)
	rr = signedPost(t, router, base+"/confirm", p1, api.SecretRequest{SecretID: id})
	assert.Equal(t, "AlreadyConfirmed", decodeErrorResponse(t, rr).Code)

	// body must name the path's secret
	other := interfaces.SecretIDFromLabel("other")
	rr = signedPost(t, router, base+"/close", owner, api.SecretRequest{SecretID: other})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	unknown := "/api/v1/secrets/" + other.String()
	rr = get(router, unknown)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "UnknownSecret", decodeErrorResponse(t, rr).Code)
	rr = signedPost(t, router, unknown+"/close", owner, api.SecretRequest{SecretID: other})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = get(router, unknown+"/can_reconstruct")
	assert.JSONEq(t, `{"can_reconstruct":false}`, rr.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(router, "/api/v1/secrets/0x1234").Code)
	assert.Equal(t, http.StatusBadRequest, get(router, base+"/participants/nothex").Code)
}

func TestEvents(t *testing.T) {
	router := newTestServer(t).Router()
	owner, p1 := newSigner(t), newSigner(t)
	id := interfaces.SecretIDFromLabel("events")

	rr := get(router, "/api/v1/events")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	signedPost(t, router, "/api/v1/secrets", owner, api.RegisterRequest{
		SecretID: id, M: 1, Participants: []interfaces.Address{p1.Address()}, SecretHash: testHash,
	})
	signedPost(t, router, "/api/v1/secrets/"+id.String()+"/confirm", p1, api.SecretRequest{SecretID: id})
	signedPost(t, router, "/api/v1/secrets/"+id.String()+"/close", owner, api.SecretRequest{SecretID: id})

	rr = get(router, "/api/v1/events?from=0")
	require.Equal(t, http.StatusOK, rr.Code)
	var events []interfaces.Event
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
	require.Len(t, events, 3)
	assert.Equal(t, interfaces.EventSecretRegistered, events[0].Type)
	assert.Equal(t, interfaces.EventReceiptConfirmed, events[1].Type)
	assert.Equal(t, p1.Address(), events[1].Confirmed.Participant)
	assert.Equal(t, interfaces.EventSecretClosed, events[2].Type)
	for i, ev := range events {
		assert.Equal(t, uint64(i), ev.Seq)
		assert.Equal(t, id, ev.SecretID())
	}

	rr = get(router, "/api/v1/events?from=2")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, interfaces.EventSecretClosed, events[0].Type)

	assert.Equal(t, http.StatusBadRequest, get(router, "/api/v1/events?from=-1").Code)
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestServer(t).Router()

	assert.Equal(t, http.StatusOK, get(router, "/livez").Code)
	assert.Equal(t, http.StatusOK, get(router, "/readyz").Code)

	rr := get(router, "/drain")
	assert.JSONEq(t, `{"status":"draining"}`, rr.Body.String())
	assert.Equal(t, http.StatusServiceUnavailable, get(router, "/readyz").Code)
	rr = get(router, "/drain")
	assert.JSONEq(t, `{"status":"already draining"}`, rr.Body.String())

	rr = get(router, "/undrain")
	assert.JSONEq(t, `{"status":"ready"}`, rr.Body.String())
	assert.Equal(t, http.StatusOK, get(router, "/readyz").Code)
}

func TestDrainRejectsWrites(t *testing.T) {
	router := newTestServer(t).Router()
	owner, p1 := newSigner(t), newSigner(t)
	id := interfaces.SecretIDFromLabel("drain")
	body := api.RegisterRequest{
		SecretID:     id,
		M:            1,
		Participants: []interfaces.Address{p1.Address()},
		SecretHash:   testHash,
	}

	get(router, "/drain")
	rr := signedPost(t, router, "/api/v1/secrets", owner, body)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, interfaces.ErrLedgerUnavailable.Code, decodeErrorResponse(t, rr).Code)

	// reads are still served
	rr = get(router, "/api/v1/secrets/"+id.String())
	assert.Equal(t, http.StatusNotFound, rr.Code)

	get(router, "/undrain")
	rr = signedPost(t, router, "/api/v1/secrets", owner, body)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}
