package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flashbots/go-utils/signature"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/threshold-secret-registry/api"
	"github.com/ruteri/threshold-secret-registry/interfaces"
)

const (
	// maxBodySize is the maximum allowed request body size (64KB). A
	// registration with 255 participants is well below it.
	maxBodySize = 64 * 1024
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Registry is the state machine served by the handler. *registry.Engine
// satisfies it.
type Registry interface {
	// As returns a view of the registry acting as caller.
	As(caller interfaces.Address) interfaces.SecretRegistry
}

// Handler serves the registry API. Mutations are authenticated by a
// signature over the request body; the recovered address is the caller.
type Handler struct {
	registry Registry
	events   interfaces.EventSource
	log      *slog.Logger
}

// NewHandler creates a new HTTP request handler.
//
// Parameters:
//   - registry: Registry state machine
//   - events: Event log served at /api/v1/events
//   - log: Structured logger for operational insights
func NewHandler(registry Registry, events interfaces.EventSource, log *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		events:   events,
		log:      log,
	}
}

// HandleRegister creates a secret record owned by the signer.
//
// URL format: POST /api/v1/secrets
// Required headers:
//   - X-Registry-Signature: "<address>:<signature>" over the body
//
// Request body: api.RegisterRequest
// Response: interfaces.SecretRegistered
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	caller, body, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req api.RegisterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, r, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid request body: %w", err)})
		return
	}

	log := h.log.With("secretId", req.SecretID.String(), "caller", caller.Hex(), "requestId", req.RequestID)
	ev, err := h.registry.As(caller).RegisterSecret(r.Context(), req.SecretID, req.M, req.Participants, req.SecretHash)
	if err != nil {
		log.Info("Registration rejected", "err", err)
		h.writeError(w, r, err)
		return
	}

	log.Info("Secret registered", "m", ev.Threshold, "n", ev.N)
	h.writeJSON(w, r, http.StatusOK, ev)
}

// HandleConfirm records that the signer holds its share.
//
// URL format: POST /api/v1/secrets/{secret_id}/confirm
// Request body: api.SecretRequest with the same secret_id as the path
// Response: interfaces.ReceiptConfirmed
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	caller, id, req, err := h.secretRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	log := h.log.With("secretId", id.String(), "caller", caller.Hex(), "requestId", req.RequestID)
	ev, err := h.registry.As(caller).ConfirmReceipt(r.Context(), id)
	if err != nil {
		log.Info("Confirmation rejected", "err", err)
		h.writeError(w, r, err)
		return
	}

	log.Info("Receipt confirmed")
	h.writeJSON(w, r, http.StatusOK, ev)
}

// HandleClose deactivates a secret. Only the owner may close it.
//
// URL format: POST /api/v1/secrets/{secret_id}/close
// Request body: api.SecretRequest with the same secret_id as the path
// Response: interfaces.SecretClosed
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	caller, id, req, err := h.secretRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	log := h.log.With("secretId", id.String(), "caller", caller.Hex(), "requestId", req.RequestID)
	ev, err := h.registry.As(caller).CloseSecret(r.Context(), id)
	if err != nil {
		log.Info("Close rejected", "err", err)
		h.writeError(w, r, err)
		return
	}

	log.Info("Secret closed")
	h.writeJSON(w, r, http.StatusOK, ev)
}

// HandleGetSecret returns the public view of a record.
//
// URL format: GET /api/v1/secrets/{secret_id}
func (h *Handler) HandleGetSecret(w http.ResponseWriter, r *http.Request) {
	id, err := secretIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	reader := h.reader()
	rec, err := reader.GetSecret(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok, err := reader.CanReconstruct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, api.NewSecretInfo(rec, ok))
}

// HandleCanReconstruct reports whether confirmations reached the threshold.
// Unknown ids answer false.
//
// URL format: GET /api/v1/secrets/{secret_id}/can_reconstruct
func (h *Handler) HandleCanReconstruct(w http.ResponseWriter, r *http.Request) {
	id, err := secretIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok, err := h.reader().CanReconstruct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, api.CanReconstructResponse{CanReconstruct: ok})
}

// HandleParticipant answers isParticipant and hasConfirmed for one address.
//
// URL format: GET /api/v1/secrets/{secret_id}/participants/{address}
func (h *Handler) HandleParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := secretIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	addrHex := chi.URLParam(r, "address")
	if !common.IsHexAddress(addrHex) {
		h.writeError(w, r, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid address %q", addrHex)})
		return
	}
	addr := common.HexToAddress(addrHex)

	reader := h.reader()
	isParticipant, err := reader.IsParticipant(r.Context(), id, addr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	hasConfirmed, err := reader.HasConfirmed(r.Context(), id, addr)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, api.ParticipantStatus{IsParticipant: isParticipant, HasConfirmed: hasConfirmed})
}

// HandleEvents returns the event log starting at sequence number ?from=.
//
// URL format: GET /api/v1/events?from=N
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	var from uint64
	if raw := r.URL.Query().Get("from"); raw != "" {
		var err error
		if from, err = strconv.ParseUint(raw, 10, 64); err != nil {
			h.writeError(w, r, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid from %q", raw)})
			return
		}
	}

	events, err := h.events.Events(r.Context(), from)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []interfaces.Event{}
	}
	h.writeJSON(w, r, http.StatusOK, events)
}

func (h *Handler) reader() interfaces.SecretReader {
	return h.registry.As(interfaces.ZeroAddress)
}

// authenticate reads the body and recovers the signer from SignatureHeader.
func (h *Handler) authenticate(r *http.Request) (interfaces.Address, []byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return interfaces.ZeroAddress, nil, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("failed to read request body: %w", err)}
	}
	if len(body) > maxBodySize {
		return interfaces.ZeroAddress, nil, &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: errors.New("request body too large")}
	}

	header := r.Header.Get(api.SignatureHeader)
	if header == "" {
		return interfaces.ZeroAddress, nil, api.ErrMissingSignature
	}
	caller, err := signature.Verify(header, body)
	if err != nil {
		return interfaces.ZeroAddress, nil, fmt.Errorf("%w: %v", api.ErrBadSignature, err)
	}
	return caller, body, nil
}

// secretRequest authenticates a confirm or close request and checks that the
// signed body names the secret in the path.
func (h *Handler) secretRequest(r *http.Request) (interfaces.Address, interfaces.SecretID, *api.SecretRequest, error) {
	id, err := secretIDParam(r)
	if err != nil {
		return interfaces.ZeroAddress, id, nil, err
	}
	caller, body, err := h.authenticate(r)
	if err != nil {
		return interfaces.ZeroAddress, id, nil, err
	}

	var req api.SecretRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return interfaces.ZeroAddress, id, nil, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid request body: %w", err)}
	}
	if req.SecretID != id {
		return interfaces.ZeroAddress, id, nil, &RequestError{StatusCode: http.StatusBadRequest, Err: errors.New("secret_id in body does not match path")}
	}
	return caller, id, &req, nil
}

func secretIDParam(r *http.Request) (interfaces.SecretID, error) {
	raw := chi.URLParam(r, "secret_id")
	id, err := interfaces.NewSecretIDFromHex(raw)
	if err != nil {
		return id, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid secret id %q: %w", raw, err)}
	}
	return id, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err, "path", r.URL.Path)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := api.StatusFor(err)
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.StatusCode
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err, "path", r.URL.Path)
	}
	h.writeJSON(w, r, status, api.NewErrorResponse(err))
}
