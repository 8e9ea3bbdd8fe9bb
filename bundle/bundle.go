package bundle

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/threshold-secret-registry/cryptoutils"
	"github.com/ruteri/threshold-secret-registry/interfaces"
)

// Version is the bundle format written by this package.
const Version = 1

var (
	// ErrIncompleteBundle is returned when a participant has no encrypted share.
	ErrIncompleteBundle = errors.New("incomplete bundle")

	// ErrInconsistentBundle is returned when bundle fields contradict each other.
	ErrInconsistentBundle = errors.New("inconsistent bundle")

	// ErrNoShare is returned when opening a share for an address outside the bundle.
	ErrNoShare = errors.New("no share for participant")
)

// ShareBundle is the off-registry artifact handed to participants. It carries
// one encrypted share per participant and never the secret itself. A
// participant whose share could not be encrypted is listed as undelivered
// instead. A bundle cannot be modified once assembled.
type ShareBundle struct {
	label        string
	secretID     interfaces.SecretID
	secretHash   interfaces.SecretHash
	salt         string
	threshold    uint8
	participants []interfaces.Address
	shares       map[interfaces.Address][]byte
	undelivered  []interfaces.Address
}

// AssembleParams are the already computed parts of a bundle.
type AssembleParams struct {
	Label           string
	SecretID        interfaces.SecretID
	SecretHash      interfaces.SecretHash
	Salt            string
	Threshold       uint8
	N               int
	Participants    []interfaces.Address
	EncryptedShares map[interfaces.Address][]byte

	// Undelivered participants have no entry in EncryptedShares.
	Undelivered []interfaces.Address
}

// Assemble packages the parameters into a bundle after checking that every
// participant has exactly one share, or is listed as undelivered, and the
// header fields agree.
func Assemble(params AssembleParams) (*ShareBundle, error) {
	n := len(params.Participants)
	if n == 0 {
		return nil, fmt.Errorf("%w: no participants", ErrInconsistentBundle)
	}
	if params.N != n {
		return nil, fmt.Errorf("%w: N=%d but %d participants", ErrInconsistentBundle, params.N, n)
	}
	if n > interfaces.MaxParticipants {
		return nil, fmt.Errorf("%w: %d participants exceeds %d", ErrInconsistentBundle, n, interfaces.MaxParticipants)
	}
	if params.Threshold < 1 || int(params.Threshold) > n {
		return nil, fmt.Errorf("%w: M=%d N=%d", ErrInconsistentBundle, params.Threshold, n)
	}
	if interfaces.SecretIDFromLabel(params.Label) != params.SecretID {
		return nil, fmt.Errorf("%w: secretId does not match label %q", ErrInconsistentBundle, params.Label)
	}

	isUndelivered := make(map[interfaces.Address]bool, len(params.Undelivered))
	for _, p := range params.Undelivered {
		isUndelivered[p] = true
	}

	seen := make(map[interfaces.Address]bool, n)
	shares := make(map[interfaces.Address][]byte, n)
	var undelivered []interfaces.Address
	for _, p := range params.Participants {
		if seen[p] {
			return nil, fmt.Errorf("%w: duplicate participant %s", ErrInconsistentBundle, p.Hex())
		}
		seen[p] = true

		ct, ok := params.EncryptedShares[p]
		if isUndelivered[p] {
			if ok {
				return nil, fmt.Errorf("%w: undelivered participant %s has a share", ErrInconsistentBundle, p.Hex())
			}
			undelivered = append(undelivered, p)
			continue
		}
		if !ok || len(ct) == 0 {
			return nil, fmt.Errorf("%w: missing share for %s", ErrIncompleteBundle, p.Hex())
		}
		shares[p] = bytes.Clone(ct)
	}
	if len(undelivered) != len(isUndelivered) {
		return nil, fmt.Errorf("%w: undelivered address is not a participant", ErrInconsistentBundle)
	}
	if len(params.EncryptedShares) != n-len(undelivered) {
		return nil, fmt.Errorf("%w: %d shares for %d participants", ErrInconsistentBundle, len(params.EncryptedShares), n)
	}

	return &ShareBundle{
		label:        params.Label,
		secretID:     params.SecretID,
		secretHash:   params.SecretHash,
		salt:         params.Salt,
		threshold:    params.Threshold,
		participants: append([]interfaces.Address(nil), params.Participants...),
		shares:       shares,
		undelivered:  undelivered,
	}, nil
}

func (b *ShareBundle) Label() string { return b.label }
func (b *ShareBundle) SecretID() interfaces.SecretID { return b.secretID }
func (b *ShareBundle) SecretHash() interfaces.SecretHash { return b.secretHash }
func (b *ShareBundle) Salt() string { return b.salt }
func (b *ShareBundle) Threshold() uint8 { return b.threshold }
func (b *ShareBundle) N() int { return len(b.participants) }

// Participants returns the participants in registration order.
func (b *ShareBundle) Participants() []interfaces.Address {
	return append([]interfaces.Address(nil), b.participants...)
}

// Complete reports whether every participant has an encrypted share.
func (b *ShareBundle) Complete() bool { return len(b.undelivered) == 0 }

// Undelivered returns the participants without a share, in registration order.
func (b *ShareBundle) Undelivered() []interfaces.Address {
	return append([]interfaces.Address(nil), b.undelivered...)
}

// Delivered is the number of participants holding an encrypted share.
func (b *ShareBundle) Delivered() int { return len(b.shares) }

// EncryptedShare returns a copy of the ciphertext for addr.
func (b *ShareBundle) EncryptedShare(addr interfaces.Address) ([]byte, bool) {
	ct, ok := b.shares[addr]
	if !ok {
		return nil, false
	}
	return bytes.Clone(ct), true
}

// OpenShare decrypts the share addressed to addr with the participant's
// encryption key.
func (b *ShareBundle) OpenShare(addr interfaces.Address, priv *ecdsa.PrivateKey) (cryptoutils.Share, error) {
	ct, ok := b.shares[addr]
	if !ok {
		for _, u := range b.undelivered {
			if u == addr {
				return nil, fmt.Errorf("%w: share for %s was not delivered", ErrNoShare, addr.Hex())
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNoShare, addr.Hex())
	}
	plain, err := cryptoutils.DecryptShare(ct, priv)
	if err != nil {
		return nil, err
	}
	share := cryptoutils.Share(plain)
	if share.Threshold() != int(b.threshold) {
		share.Wipe()
		return nil, fmt.Errorf("%w: share threshold does not match bundle", cryptoutils.ErrInvalidShare)
	}
	return share, nil
}

// VerifySecret reports whether secret opens the bundle's commitment.
func (b *ShareBundle) VerifySecret(secret []byte) bool {
	return cryptoutils.VerifyCommitment(b.secretHash, secret, b.salt)
}

// Reconstruct combines shares and checks the result against the commitment.
func (b *ShareBundle) Reconstruct(shares []cryptoutils.Share) ([]byte, error) {
	secret, err := cryptoutils.CombineShares(shares)
	if err != nil {
		return nil, err
	}
	if !b.VerifySecret(secret) {
		return nil, fmt.Errorf("%w: reconstructed secret does not match secretHash", ErrInconsistentBundle)
	}
	return secret, nil
}

type bundleJSON struct {
	Version         int                           `json:"version,omitempty"`
	Label           string                        `json:"label"`
	SecretID        interfaces.SecretID           `json:"secretId"`
	SecretHash      interfaces.SecretHash         `json:"secretHash"`
	Salt            string                        `json:"salt"`
	M               uint8                         `json:"M"`
	N               int                           `json:"N"`
	Participants    []interfaces.Address `json:"participants"`
	EncryptedShares map[string]string    `json:"encryptedSharesBase64"`
	Undelivered     []interfaces.Address `json:"undelivered,omitempty"`
}

// MarshalJSON encodes the bundle in its interchange form. Share entries are
// keyed by checksummed address.
func (b *ShareBundle) MarshalJSON() ([]byte, error) {
	encoded := make(map[string]string, len(b.shares))
	for addr, ct := range b.shares {
		encoded[addr.Hex()] = base64.StdEncoding.EncodeToString(ct)
	}
	return json.Marshal(bundleJSON{
		Version:         Version,
		Label:           b.label,
		SecretID:        b.secretID,
		SecretHash:      b.secretHash,
		Salt:            b.salt,
		M:               b.threshold,
		N:               len(b.participants),
		Participants:    b.participants,
		EncryptedShares: encoded,
		Undelivered:     b.undelivered,
	})
}

// Marshal returns the indented interchange form, as written to bundle.json.
func (b *ShareBundle) Marshal() ([]byte, error) {
	raw, err := b.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Parse decodes and validates a bundle. Bundles without a version field are
// accepted as version 1.
func Parse(data []byte) (*ShareBundle, error) {
	var raw bundleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	if raw.Version > Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInconsistentBundle, raw.Version)
	}

	shares := make(map[interfaces.Address][]byte, len(raw.EncryptedShares))
	for key, text := range raw.EncryptedShares {
		if !common.IsHexAddress(key) {
			return nil, fmt.Errorf("%w: share key %q is not an address", ErrInconsistentBundle, key)
		}
		addr := common.HexToAddress(key)
		if _, dup := shares[addr]; dup {
			return nil, fmt.Errorf("%w: duplicate share for %s", ErrInconsistentBundle, addr.Hex())
		}
		ct, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("%w: share for %s is not base64: %v", ErrInconsistentBundle, addr.Hex(), err)
		}
		shares[addr] = ct
	}

	return Assemble(AssembleParams{
		Label:           raw.Label,
		SecretID:        raw.SecretID,
		SecretHash:      raw.SecretHash,
		Salt:            raw.Salt,
		Threshold:       raw.M,
		N:               raw.N,
		Participants:    raw.Participants,
		EncryptedShares: shares,
		Undelivered:     raw.Undelivered,
	})
}

// UnmarshalJSON decodes and validates a bundle in place.
func (b *ShareBundle) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*b = *parsed
	return nil
}
