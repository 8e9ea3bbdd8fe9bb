package api

import (
	"time"

	"github.com/ruteri/threshold-secret-registry/interfaces"
)

// SignatureHeader carries the caller's signature over the request body in
// the form "<address>:<signature>".
const SignatureHeader = "X-Registry-Signature"

// RegisterRequest is the body of POST /api/v1/secrets.
type RegisterRequest struct {
	SecretID     interfaces.SecretID   `json:"secret_id"`
	M            uint8                 `json:"m"`
	Participants []interfaces.Address  `json:"participants"`
	SecretHash   interfaces.SecretHash `json:"secret_hash"`

	// RequestID is a client chosen id echoed in server logs.
	RequestID string `json:"request_id,omitempty"`
}

// SecretRequest is the body of the confirm and close endpoints. SecretID
// must match the id in the path, which binds the signature to one secret.
type SecretRequest struct {
	SecretID  interfaces.SecretID `json:"secret_id"`
	RequestID string              `json:"request_id,omitempty"`
}

// SecretInfo is the public view of a registry record.
type SecretInfo struct {
	SecretID       interfaces.SecretID   `json:"secret_id"`
	Owner          interfaces.Address    `json:"owner"`
	M              uint8                 `json:"m"`
	N              int                   `json:"n"`
	Participants   []interfaces.Address  `json:"participants"`
	SecretHash     interfaces.SecretHash `json:"secret_hash"`
	Active         bool                  `json:"active"`
	Confirmations  uint                  `json:"confirmations"`
	Confirmed      []interfaces.Address  `json:"confirmed"`
	CanReconstruct bool                  `json:"can_reconstruct"`
	RegisteredAt   time.Time             `json:"registered_at"`
	ClosedAt       *time.Time            `json:"closed_at,omitempty"`
}

// NewSecretInfo converts a record. Confirmed keeps participant order.
func NewSecretInfo(rec *interfaces.SecretRecord, canReconstruct bool) *SecretInfo {
	info := &SecretInfo{
		SecretID:       rec.ID,
		Owner:          rec.Owner,
		M:              rec.Threshold,
		N:              rec.N(),
		Participants:   append([]interfaces.Address(nil), rec.Participants...),
		SecretHash:     rec.SecretHash,
		Active:         rec.Active,
		Confirmations:  rec.Confirmations,
		Confirmed:      []interfaces.Address{},
		CanReconstruct: canReconstruct,
		RegisteredAt:   rec.RegisteredAt,
	}
	for _, p := range rec.Participants {
		if rec.HasConfirmed(p) {
			info.Confirmed = append(info.Confirmed, p)
		}
	}
	if !rec.ClosedAt.IsZero() {
		closedAt := rec.ClosedAt
		info.ClosedAt = &closedAt
	}
	return info
}

// Record converts the view back into a record.
func (s *SecretInfo) Record() *interfaces.SecretRecord {
	rec := &interfaces.SecretRecord{
		ID:            s.SecretID,
		Owner:         s.Owner,
		Threshold:     s.M,
		Participants:  append([]interfaces.Address(nil), s.Participants...),
		SecretHash:    s.SecretHash,
		Active:        s.Active,
		Confirmed:     make(map[interfaces.Address]bool, len(s.Confirmed)),
		Confirmations: s.Confirmations,
		RegisteredAt:  s.RegisteredAt,
	}
	for _, p := range s.Confirmed {
		rec.Confirmed[p] = true
	}
	if s.ClosedAt != nil {
		rec.ClosedAt = *s.ClosedAt
	}
	return rec
}

type CanReconstructResponse struct {
	CanReconstruct bool `json:"can_reconstruct"`
}

type ParticipantStatus struct {
	IsParticipant bool `json:"is_participant"`
	HasConfirmed  bool `json:"has_confirmed"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string               `json:"code,omitempty"`
	Kind    interfaces.ErrorKind `json:"kind"`
	Message string               `json:"error"`
}
