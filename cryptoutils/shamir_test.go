package cryptoutils

import (
	"bytes"
	"crypto/rand"
	"math/bits"
	"testing"

	"github.com/hashicorp/vault/shamir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCombine_AllSubsets(t *testing.T) {
	secret := []byte("correct horse battery staple")

	for n := 1; n <= 6; n++ {
		for m := 1; m <= n; m++ {
			shares, err := SplitSecret(secret, n, m)
			require.NoError(t, err, "split n=%d m=%d", n, m)
			require.Len(t, shares, n)

			for mask := 1; mask < 1<<n; mask++ {
				subset := make([]Share, 0, n)
				for i := 0; i < n; i++ {
					if mask&(1<<i) != 0 {
						subset = append(subset, shares[i])
					}
				}

				got, err := CombineShares(subset)
				if bits.OnesCount(uint(mask)) >= m {
					require.NoError(t, err, "n=%d m=%d mask=%b", n, m, mask)
					assert.Equal(t, secret, got)
				} else {
					assert.ErrorIs(t, err, ErrInsufficientShares, "n=%d m=%d mask=%b", n, m, mask)
				}
			}
		}
	}
}

func TestSplitSecret_InvalidParameters(t *testing.T) {
	testCases := []struct {
		name   string
		secret []byte
		n, m   int
	}{
		{"zero threshold", []byte("s"), 3, 0},
		{"threshold above n", []byte("s"), 3, 4},
		{"zero shares", []byte("s"), 0, 0},
		{"too many shares", []byte("s"), 256, 2},
		{"empty secret", nil, 3, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SplitSecret(tc.secret, tc.n, tc.m)
			assert.ErrorIs(t, err, ErrInvalidParameters)
		})
	}
}

func TestSplitSecret_MaxParticipants(t *testing.T) {
	secret := []byte{0x42}
	shares, err := SplitSecret(secret, 255, 255)
	require.NoError(t, err)
	require.Len(t, shares, 255)

	got, err := CombineShares(shares)
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestSplitSecret_ThresholdOneReplicates(t *testing.T) {
	secret := []byte("replicated")
	shares, err := SplitSecret(secret, 3, 1)
	require.NoError(t, err)

	xs := map[byte]bool{}
	for _, s := range shares {
		got, err := CombineShares([]Share{s})
		require.NoError(t, err)
		assert.Equal(t, secret, got)
		xs[s.X()] = true
	}
	assert.Len(t, xs, 3, "shares still carry distinct indexes")
}

func TestCombineShares_BelowThresholdRevealsNothing(t *testing.T) {
	secret := make([]byte, 16)
	_, err := rand.Read(secret)
	require.NoError(t, err)

	// Interpolating m-1 raw shares yields an unrelated value.
	for i := 0; i < 50; i++ {
		shares, err := SplitSecret(secret, 5, 3)
		require.NoError(t, err)

		guess, err := shamir.Combine([][]byte{shares[0][shareHeader:], shares[1][shareHeader:]})
		require.NoError(t, err)
		assert.False(t, bytes.Equal(secret, guess))
	}
}

func TestCombineShares_Rejects(t *testing.T) {
	a, err := SplitSecret([]byte("first secret"), 3, 2)
	require.NoError(t, err)
	b, err := SplitSecret([]byte("other secret value"), 3, 2)
	require.NoError(t, err)

	_, err = CombineShares([]Share{a[0], b[1]})
	assert.ErrorIs(t, err, ErrInvalidShare, "mixed splits")

	_, err = CombineShares([]Share{a[0], a[0]})
	assert.ErrorIs(t, err, ErrInvalidShare, "duplicate share")

	bad := append(Share{0x09}, a[0][1:]...)
	_, err = CombineShares([]Share{bad, a[1]})
	assert.ErrorIs(t, err, ErrInvalidShare, "unknown version")

	_, err = CombineShares(nil)
	assert.ErrorIs(t, err, ErrInsufficientShares)
}

func TestShareHexRoundTrip(t *testing.T) {
	shares, err := SplitSecret([]byte("hex"), 2, 2)
	require.NoError(t, err)

	parsed, err := ShareFromHex(shares[0].Hex())
	require.NoError(t, err)
	assert.Equal(t, shares[0], parsed)
	assert.Equal(t, 2, parsed.Threshold())

	_, err = ShareFromHex("zz")
	assert.ErrorIs(t, err, ErrInvalidShare)

	parsed.Wipe()
	assert.Equal(t, make(Share, len(parsed)), parsed)
}
