package cryptoutils

import (
	"encoding/hex"
	"fmt"

	"github.com/hashicorp/vault/shamir"
	"github.com/ruteri/threshold-secret-registry/interfaces"
)

const (
	// shareVersion is the first byte of every encoded share.
	shareVersion byte = 0x01
	shareHeader       = 2
)

var (
	ErrInvalidParameters  = interfaces.NewCryptoError("invalid split parameters")
	ErrInsufficientShares = interfaces.NewCryptoError("insufficient shares")
	ErrInvalidShare       = interfaces.NewCryptoError("invalid share")
)

// Share is one encoded share: [version][threshold][payload]. The payload is
// the GF(2^8) share (y-values followed by the x-coordinate) or, for a
// threshold of 1, the secret followed by the share index.
type Share []byte

// Threshold returns the threshold the share was produced for.
func (s Share) Threshold() int {
	if len(s) < shareHeader {
		return 0
	}
	return int(s[1])
}

// X returns the share's x-coordinate.
func (s Share) X() byte {
	if len(s) <= shareHeader {
		return 0
	}
	return s[len(s)-1]
}

// Hex returns the text encoding stored in bundles.
func (s Share) Hex() string {
	return hex.EncodeToString(s)
}

// Wipe zeroes the share in place.
func (s Share) Wipe() {
	wipeBytes(s)
}

// ShareFromHex decodes the text encoding produced by Share.Hex.
func ShareFromHex(text string) (Share, error) {
	raw, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShare, err)
	}
	return Share(raw), nil
}

// SplitSecret splits secret into n shares, any m of which reconstruct it.
//
// Parameters:
//   - secret: Non-empty secret bytes
//   - n: Number of shares, 1..255
//   - m: Threshold, 1..n
//
// A threshold of 1 replicates the secret into every share.
func SplitSecret(secret []byte, n, m int) ([]Share, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidParameters)
	}
	if n < 1 || n > interfaces.MaxParticipants {
		return nil, fmt.Errorf("%w: share count %d out of range", ErrInvalidParameters, n)
	}
	if m < 1 || m > n {
		return nil, fmt.Errorf("%w: threshold %d out of range for %d shares", ErrInvalidParameters, m, n)
	}

	shares := make([]Share, n)
	if m == 1 {
		for i := range shares {
			s := make(Share, 0, shareHeader+len(secret)+1)
			s = append(s, shareVersion, 1)
			s = append(s, secret...)
			s = append(s, byte(i+1))
			shares[i] = s
		}
		return shares, nil
	}

	raw, err := shamir.Split(secret, n, m)
	if err != nil {
		return nil, fmt.Errorf("failed to split secret: %w", err)
	}
	for i, r := range raw {
		s := make(Share, 0, shareHeader+len(r))
		s = append(s, shareVersion, byte(m))
		s = append(s, r...)
		shares[i] = s
		wipeBytes(r)
	}
	return shares, nil
}

// CombineShares reconstructs the secret from at least threshold shares.
// Shares must come from the same split.
func CombineShares(shares []Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, ErrInsufficientShares
	}

	threshold := 0
	length := 0
	seen := make(map[byte]bool, len(shares))
	for i, s := range shares {
		if len(s) < shareHeader+2 || s[0] != shareVersion || s[1] == 0 {
			return nil, fmt.Errorf("%w: share %d is malformed", ErrInvalidShare, i)
		}
		if i == 0 {
			threshold, length = int(s[1]), len(s)
		} else if int(s[1]) != threshold || len(s) != length {
			return nil, fmt.Errorf("%w: share %d does not belong to this split", ErrInvalidShare, i)
		}
		if seen[s.X()] {
			return nil, fmt.Errorf("%w: duplicate share %d", ErrInvalidShare, s.X())
		}
		seen[s.X()] = true
	}

	if len(shares) < threshold {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientShares, len(shares), threshold)
	}

	if threshold == 1 {
		payload := shares[0][shareHeader:]
		secret := make([]byte, len(payload)-1)
		copy(secret, payload)
		return secret, nil
	}

	parts := make([][]byte, len(shares))
	for i, s := range shares {
		parts[i] = s[shareHeader:]
	}
	secret, err := shamir.Combine(parts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShare, err)
	}
	return secret, nil
}

// wipeBytes securely erases a byte slice by overwriting it with zeros.
func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
