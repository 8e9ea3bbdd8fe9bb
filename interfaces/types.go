package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxParticipants bounds N. Share x-coordinates live in GF(2^8) and the
// ledger encodes M and N as uint8.
const MaxParticipants = 255

// Address identifies a participant or owner. The zero address is the null identity.
type Address = common.Address

// ZeroAddress is the null identity, never a valid participant.
var ZeroAddress = Address{}

// SecretID is the 32-byte registry key of a secret, derived from its label.
type SecretID [32]byte

// SecretIDFromLabel derives the identifier as keccak256 of the UTF-8 label.
func SecretIDFromLabel(label string) SecretID {
	return SecretID(crypto.Keccak256Hash([]byte(label)))
}

// NewSecretIDFromBytes copies a 32-byte slice into a SecretID.
func NewSecretIDFromBytes(source []byte) (SecretID, error) {
	if len(source) != 32 {
		return SecretID{}, errors.New("invalid secret id: incorrect length")
	}
	var id SecretID
	copy(id[:], source)
	return id, nil
}

// NewSecretIDFromHex parses a 64-character hex string, with or without 0x prefix.
func NewSecretIDFromHex(source string) (SecretID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return SecretID{}, errors.New("invalid secret id length: hex string must be 64 characters")
	}
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return SecretID{}, fmt.Errorf("invalid hex format: %w", err)
	}
	return NewSecretIDFromBytes(raw)
}

// String returns the 0x-prefixed hex form.
func (id SecretID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Bytes returns a copy of the raw identifier.
func (id SecretID) Bytes() []byte {
	out := make([]byte, 32)
	copy(out, id[:])
	return out
}

func (id SecretID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *SecretID) UnmarshalText(text []byte) error {
	parsed, err := NewSecretIDFromHex(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// SecretHash is the owner-supplied commitment to the secret. The registry
// stores it without interpreting it.
type SecretHash [32]byte

// NewSecretHashFromHex parses a 64-character hex commitment.
func NewSecretHashFromHex(source string) (SecretHash, error) {
	id, err := NewSecretIDFromHex(source)
	if err != nil {
		return SecretHash{}, fmt.Errorf("invalid secret hash: %w", err)
	}
	return SecretHash(id), nil
}

func (h SecretHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h SecretHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *SecretHash) UnmarshalText(text []byte) error {
	parsed, err := NewSecretHashFromHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// SecretRecord is the registry's per-secret state.
//
// Owner, Threshold, Participants and SecretHash are immutable after creation.
// Active only moves from true to false. Confirmed is a subset of Participants
// and only grows while Active.
type SecretRecord struct {
	ID            SecretID
	Owner         Address
	Threshold     uint8
	Participants  []Address
	SecretHash    SecretHash
	Active        bool
	Confirmed     map[Address]bool
	Confirmations uint
	RegisteredAt  time.Time
	ClosedAt      time.Time
}

// N returns the number of participants.
func (r *SecretRecord) N() int {
	return len(r.Participants)
}

// IsParticipant reports whether addr is in the participant list.
func (r *SecretRecord) IsParticipant(addr Address) bool {
	for _, p := range r.Participants {
		if p == addr {
			return true
		}
	}
	return false
}

// HasConfirmed reports whether addr acknowledged receipt.
func (r *SecretRecord) HasConfirmed(addr Address) bool {
	return r.Confirmed[addr]
}

// Clone returns a deep copy so callers cannot alias stored state.
func (r *SecretRecord) Clone() *SecretRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Participants = append([]Address(nil), r.Participants...)
	out.Confirmed = make(map[Address]bool, len(r.Confirmed))
	for k, v := range r.Confirmed {
		out.Confirmed[k] = v
	}
	return &out
}

// EventType names a registry state transition.
type EventType string

const (
	EventSecretRegistered EventType = "SecretRegistered"
	EventReceiptConfirmed EventType = "ReceiptConfirmed"
	EventSecretClosed     EventType = "SecretClosed"
)

type SecretRegistered struct {
	SecretID   SecretID   `json:"secret_id"`
	Owner      Address    `json:"owner"`
	Threshold  uint8      `json:"m"`
	N          uint8      `json:"n"`
	SecretHash SecretHash `json:"secret_hash"`
	Timestamp  time.Time  `json:"timestamp"`
}

type ReceiptConfirmed struct {
	SecretID    SecretID  `json:"secret_id"`
	Participant Address   `json:"participant"`
	Timestamp   time.Time `json:"timestamp"`
}

type SecretClosed struct {
	SecretID  SecretID  `json:"secret_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is a sequenced entry of the registry's append-only log. Exactly one
// of the payload pointers is set, matching Type.
type Event struct {
	Seq        uint64            `json:"seq"`
	Type       EventType         `json:"type"`
	Registered *SecretRegistered `json:"registered,omitempty"`
	Confirmed  *ReceiptConfirmed `json:"confirmed,omitempty"`
	Closed     *SecretClosed     `json:"closed,omitempty"`
}

// SecretID returns the id the event refers to.
func (e *Event) SecretID() SecretID {
	switch {
	case e.Registered != nil:
		return e.Registered.SecretID
	case e.Confirmed != nil:
		return e.Confirmed.SecretID
	case e.Closed != nil:
		return e.Closed.SecretID
	}
	return SecretID{}
}
