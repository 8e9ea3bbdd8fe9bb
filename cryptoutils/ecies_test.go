package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/hkdf"
)

func TestEncryptDecryptShare(t *testing.T) {
	priv, err := GenerateEncryptionKey()
	require.NoError(t, err)

	testCases := []struct {
		name   string
		pubkey []byte
		data   []byte
	}{
		{"uncompressed key", crypto.FromECDSAPub(&priv.PublicKey), []byte("share bytes")},
		{"compressed key", crypto.CompressPubkey(&priv.PublicKey), []byte{0x00, 0x01, 0xFF}},
		{"hex key", []byte(PublicKeyHex(&priv.PublicKey)), make([]byte, 1024)},
		{"empty data", crypto.FromECDSAPub(&priv.PublicKey), []byte{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ct, err := EncryptShare(tc.data, tc.pubkey)
			require.NoError(t, err)
			require.Len(t, ct, CiphertextOverhead+len(tc.data))

			pt, err := DecryptShare(ct, priv)
			require.NoError(t, err)
			if len(tc.data) == 0 {
				assert.Empty(t, pt)
				return
			}
			assert.Equal(t, tc.data, pt)
		})
	}
}

func TestEncryptShare_FreshEphemeral(t *testing.T) {
	priv, err := GenerateEncryptionKey()
	require.NoError(t, err)
	pub := crypto.FromECDSAPub(&priv.PublicKey)

	a, err := EncryptShare([]byte("same"), pub)
	require.NoError(t, err)
	b, err := EncryptShare([]byte("same"), pub)
	require.NoError(t, err)
	assert.NotEqual(t, a[:pubkeyLen], b[:pubkeyLen])
	assert.NotEqual(t, a, b)
}

func TestDecryptShare_Fails(t *testing.T) {
	priv, err := GenerateEncryptionKey()
	require.NoError(t, err)
	other, err := GenerateEncryptionKey()
	require.NoError(t, err)

	ct, err := EncryptShare([]byte("top secret share"), crypto.FromECDSAPub(&priv.PublicKey))
	require.NoError(t, err)

	_, err = DecryptShare(ct, other)
	assert.ErrorIs(t, err, ErrDecryptionFailed, "wrong key")

	for _, offset := range []int{pubkeyLen + 1, pubkeyLen + nonceLen + 1, len(ct) - 1} {
		tampered := append([]byte(nil), ct...)
		tampered[offset] ^= 0x01
		_, err = DecryptShare(tampered, priv)
		assert.ErrorIs(t, err, ErrDecryptionFailed, "tampered byte %d", offset)
	}

	_, err = DecryptShare(ct[:CiphertextOverhead-1], priv)
	assert.ErrorIs(t, err, ErrDecryptionFailed, "truncated")

	_, err = DecryptShare(make([]byte, 200), priv)
	assert.ErrorIs(t, err, ErrDecryptionFailed, "garbage")
}

func TestEncryptShare_InvalidKey(t *testing.T) {
	priv, err := GenerateEncryptionKey()
	require.NoError(t, err)
	offCurve := crypto.FromECDSAPub(&priv.PublicKey)
	offCurve[64] ^= 0x01

	for name, key := range map[string][]byte{
		"off curve":  offCurve,
		"short":      {0x04, 0x01},
		"not hex":    []byte("not a key"),
		"empty":      nil,
		"bad prefix": append([]byte{0x07}, make([]byte, 32)...),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := EncryptShare([]byte("x"), key)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

// TestDecryptShare_EciesjsFraming builds a ciphertext the way eciesjs does by
// default: HKDF-SHA256 over ephemeralPub || sharedPoint (both uncompressed)
// with no salt or info, then AES-256-GCM with a 16 byte nonce, laid out as
// ephemeralPub || nonce || tag || ciphertext.
func TestDecryptShare_EciesjsFraming(t *testing.T) {
	recipient, err := GenerateEncryptionKey()
	require.NoError(t, err)
	ephemeral, err := crypto.GenerateKey()
	require.NoError(t, err)

	x, y := crypto.S256().ScalarMult(recipient.PublicKey.X, recipient.PublicKey.Y, ephemeral.D.Bytes())
	shared := crypto.FromECDSAPub(&ecdsa.PublicKey{Curve: crypto.S256(), X: x, Y: y})
	ephemeralPub := crypto.FromECDSAPub(&ephemeral.PublicKey)

	key := make([]byte, 32)
	_, err = io.ReadFull(hkdf.New(sha256.New, append(append([]byte{}, ephemeralPub...), shared...), nil, nil), key)
	require.NoError(t, err)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	aead, err := cipher.NewGCMWithNonceSize(block, 16)
	require.NoError(t, err)

	nonce := make([]byte, 16)
	_, err = rand.Read(nonce)
	require.NoError(t, err)
	sealed := aead.Seal(nil, nonce, []byte("interop share"), nil)
	body, tag := sealed[:len(sealed)-16], sealed[len(sealed)-16:]

	ct := append(append(append(append([]byte{}, ephemeralPub...), nonce...), tag...), body...)
	plain, err := DecryptShare(ct, recipient)
	require.NoError(t, err)
	assert.Equal(t, []byte("interop share"), plain)
}
