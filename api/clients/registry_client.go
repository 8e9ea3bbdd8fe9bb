package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/flashbots/go-utils/signature"
	"github.com/google/uuid"
	"github.com/ruteri/threshold-secret-registry/api"
	"github.com/ruteri/threshold-secret-registry/interfaces"
)

// ErrNoSigner is returned for mutations on a read-only client.
var ErrNoSigner = errors.New("no signing key configured")

// RegistryClient implements interfaces.SecretRegistry and
// interfaces.EventSource over the registry node HTTP API.
type RegistryClient struct {
	baseURL    string
	signer     *signature.Signer
	httpClient *http.Client
}

// NewRegistryClient creates a client for the node at baseURL. key signs
// mutating requests and may be nil for a read-only client.
//
// Parameters:
//   - baseURL: The node's base URL (e.g., "http://localhost:8080")
//   - key: The caller's secp256k1 key, or nil
//   - timeout: Request timeout (optional, default 30 seconds)
func NewRegistryClient(baseURL string, key *ecdsa.PrivateKey, timeout ...time.Duration) (*RegistryClient, error) {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	c := &RegistryClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: clientTimeout},
	}
	if key != nil {
		signer, err := signature.NewSignerFromHexPrivateKey("0x" + hex.EncodeToString(crypto.FromECDSA(key)))
		if err != nil {
			return nil, fmt.Errorf("failed to create request signer: %w", err)
		}
		c.signer = signer
	}
	return c, nil
}

// Caller returns the signing address, or the zero address for a read-only client.
func (c *RegistryClient) Caller() interfaces.Address {
	if c.signer == nil {
		return interfaces.ZeroAddress
	}
	return c.signer.Address()
}

func (c *RegistryClient) RegisterSecret(ctx context.Context, id interfaces.SecretID, threshold uint8, participants []interfaces.Address, secretHash interfaces.SecretHash) (*interfaces.SecretRegistered, error) {
	req := api.RegisterRequest{
		SecretID:     id,
		M:            threshold,
		Participants: participants,
		SecretHash:   secretHash,
		RequestID:    uuid.NewString(),
	}
	var ev interfaces.SecretRegistered
	if err := c.do(ctx, http.MethodPost, "/api/v1/secrets", req, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *RegistryClient) ConfirmReceipt(ctx context.Context, id interfaces.SecretID) (*interfaces.ReceiptConfirmed, error) {
	var ev interfaces.ReceiptConfirmed
	req := api.SecretRequest{SecretID: id, RequestID: uuid.NewString()}
	if err := c.do(ctx, http.MethodPost, secretPath(id, "confirm"), req, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *RegistryClient) CloseSecret(ctx context.Context, id interfaces.SecretID) (*interfaces.SecretClosed, error) {
	var ev interfaces.SecretClosed
	req := api.SecretRequest{SecretID: id, RequestID: uuid.NewString()}
	if err := c.do(ctx, http.MethodPost, secretPath(id, "close"), req, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *RegistryClient) GetSecret(ctx context.Context, id interfaces.SecretID) (*interfaces.SecretRecord, error) {
	var info api.SecretInfo
	if err := c.do(ctx, http.MethodGet, secretPath(id), nil, &info); err != nil {
		return nil, err
	}
	return info.Record(), nil
}

func (c *RegistryClient) CanReconstruct(ctx context.Context, id interfaces.SecretID) (bool, error) {
	var resp api.CanReconstructResponse
	if err := c.do(ctx, http.MethodGet, secretPath(id, "can_reconstruct"), nil, &resp); err != nil {
		return false, err
	}
	return resp.CanReconstruct, nil
}

func (c *RegistryClient) IsParticipant(ctx context.Context, id interfaces.SecretID, addr interfaces.Address) (bool, error) {
	status, err := c.participantStatus(ctx, id, addr)
	if err != nil {
		return false, err
	}
	return status.IsParticipant, nil
}

func (c *RegistryClient) HasConfirmed(ctx context.Context, id interfaces.SecretID, addr interfaces.Address) (bool, error) {
	status, err := c.participantStatus(ctx, id, addr)
	if err != nil {
		return false, err
	}
	return status.HasConfirmed, nil
}

func (c *RegistryClient) participantStatus(ctx context.Context, id interfaces.SecretID, addr interfaces.Address) (*api.ParticipantStatus, error) {
	var status api.ParticipantStatus
	if err := c.do(ctx, http.MethodGet, secretPath(id, "participants", addr.Hex()), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Events returns the node's events with sequence number >= from.
func (c *RegistryClient) Events(ctx context.Context, from uint64) ([]interfaces.Event, error) {
	var events []interfaces.Event
	path := "/api/v1/events?from=" + strconv.FormatUint(from, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func secretPath(id interfaces.SecretID, parts ...string) string {
	p := "/api/v1/secrets/" + id.String()
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (c *RegistryClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	var payload []byte
	if body != nil {
		if c.signer == nil {
			return ErrNoSigner
		}
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if payload != nil {
		sig, err := c.signer.Create(payload)
		if err != nil {
			return fmt.Errorf("failed to sign request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(api.SignatureHeader, sig)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var errResp api.ErrorResponse
		if json.Unmarshal(raw, &errResp) != nil {
			errResp.Message = strings.TrimSpace(string(raw))
		}
		return errResp.Err(resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: could not parse response: %v", interfaces.ErrLedgerUnavailable, err)
	}
	return nil
}
