package bundle

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/ruteri/threshold-secret-registry/cryptoutils"
	"github.com/ruteri/threshold-secret-registry/interfaces"
	"github.com/ruteri/threshold-secret-registry/metrics"
	"golang.org/x/sync/errgroup"
)

// Recipient is a participant together with the public key their share is
// encrypted to. KeyErr is set when the participant's key could not be loaded;
// the participant keeps its place but receives no share.
type Recipient struct {
	Address interfaces.Address
	Pubkey  []byte
	KeyErr  error
}

// BuildParams describe a new bundle.
type BuildParams struct {
	Label      string
	Secret     []byte
	Salt       string // generated when empty
	Threshold  uint8
	Recipients []Recipient
}

// DeliveryError lists the participants whose share could not be encrypted.
// Partial holds the shares that were encrypted, with the failed participants
// marked undelivered.
type DeliveryError struct {
	Failures map[interfaces.Address]error
	Partial  *ShareBundle
}

func (e *DeliveryError) Error() string {
	addrs := make([]string, 0, len(e.Failures))
	for addr, err := range e.Failures {
		addrs = append(addrs, fmt.Sprintf("%s: %v", addr.Hex(), err))
	}
	sort.Strings(addrs)
	return fmt.Sprintf("failed to encrypt %d share(s): %s", len(e.Failures), strings.Join(addrs, "; "))
}

// Build splits Secret among the recipients, encrypts each share to its
// recipient and assembles the bundle. Encryption runs in parallel and a
// failure for one recipient does not stop the others. When any share fails
// the result is a *DeliveryError carrying every failure and the partial
// bundle for the remaining participants.
func Build(ctx context.Context, params BuildParams) (*ShareBundle, error) {
	n := len(params.Recipients)
	participants := make([]interfaces.Address, n)
	for i, r := range params.Recipients {
		participants[i] = r.Address
	}

	salt := params.Salt
	if salt == "" {
		var err error
		if salt, err = cryptoutils.NewSalt(); err != nil {
			return nil, err
		}
	}

	shares, err := cryptoutils.SplitSecret(params.Secret, n, int(params.Threshold))
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, s := range shares {
			s.Wipe()
		}
	}()

	var (
		mu        sync.Mutex
		encrypted = make(map[interfaces.Address][]byte, n)
		failures  = make(map[interfaces.Address]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, r := range params.Recipients {
		if r.KeyErr != nil {
			metrics.RecordShareEncryption(r.KeyErr)
			mu.Lock()
			failures[r.Address] = r.KeyErr
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ct, err := cryptoutils.EncryptShare(shares[i], r.Pubkey)
			metrics.RecordShareEncryption(err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[r.Address] = err
				return nil
			}
			encrypted[r.Address] = ct
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var undelivered []interfaces.Address
	for _, p := range participants {
		if _, failed := failures[p]; failed {
			undelivered = append(undelivered, p)
		}
	}

	b, err := Assemble(AssembleParams{
		Label:           params.Label,
		SecretID:        interfaces.SecretIDFromLabel(params.Label),
		SecretHash:      cryptoutils.CommitSecret(params.Secret, salt),
		Salt:            salt,
		Threshold:       params.Threshold,
		N:               n,
		Participants:    participants,
		EncryptedShares: encrypted,
		Undelivered:     undelivered,
	})
	if err != nil {
		return nil, err
	}
	if len(failures) > 0 {
		return nil, &DeliveryError{Failures: failures, Partial: b}
	}
	return b, nil
}
