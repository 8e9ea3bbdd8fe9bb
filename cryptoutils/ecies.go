package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/threshold-secret-registry/interfaces"
	"golang.org/x/crypto/hkdf"
)

const (
	pubkeyLen = 65
	nonceLen  = 16
	tagLen    = 16

	// CiphertextOverhead is the size added to every encrypted share.
	CiphertextOverhead = pubkeyLen + nonceLen + tagLen
)

// hkdfInfo is empty so the key schedule matches eciesjs defaults.
var hkdfInfo []byte

var (
	ErrInvalidKey       = interfaces.NewCryptoError("invalid public key")
	ErrDecryptionFailed = interfaces.NewCryptoError("decryption failed")
)

// EncryptShare encrypts data to a secp256k1 public key.
//
// A fresh ephemeral key is agreed with the recipient via ECDH, the shared
// point is expanded with HKDF-SHA256 into an AES-256-GCM key, and the output
// layout is:
//
//	ephemeralPub(65) || nonce(16) || tag(16) || ciphertext
//
// recipientPubkey may be 65-byte uncompressed or 33-byte compressed.
func EncryptShare(data []byte, recipientPubkey []byte) ([]byte, error) {
	pub, err := ParsePublicKey(recipientPubkey)
	if err != nil {
		return nil, err
	}

	ephemeral, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	defer zeroKey(ephemeral)
	ephemeralPub := crypto.FromECDSAPub(&ephemeral.PublicKey)

	key, err := deriveKey(ephemeral, pub, ephemeralPub)
	if err != nil {
		return nil, err
	}
	defer wipeBytes(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, data, nil)
	body, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]

	out := make([]byte, 0, CiphertextOverhead+len(body))
	out = append(out, ephemeralPub...)
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, body...)
	return out, nil
}

// DecryptShare reverses EncryptShare. A wrong key or any modification of the
// ciphertext yields ErrDecryptionFailed.
func DecryptShare(ciphertext []byte, priv *ecdsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, ErrInvalidKey
	}
	if len(ciphertext) < CiphertextOverhead {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	ephemeralPub := ciphertext[:pubkeyLen]
	nonce := ciphertext[pubkeyLen : pubkeyLen+nonceLen]
	tag := ciphertext[pubkeyLen+nonceLen : CiphertextOverhead]
	body := ciphertext[CiphertextOverhead:]

	pub, err := crypto.UnmarshalPubkey(ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ephemeral key", ErrDecryptionFailed)
	}

	key, err := deriveKey(priv, pub, ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	defer wipeBytes(key)

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(body)+tagLen)
	sealed = append(sealed, body...)
	sealed = append(sealed, tag...)
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// deriveKey computes HKDF-SHA256(ephemeralPub || sharedPoint).
func deriveKey(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey, ephemeralPub []byte) ([]byte, error) {
	x, y := crypto.S256().ScalarMult(pub.X, pub.Y, priv.D.Bytes())
	if x == nil || (x.Sign() == 0 && y.Sign() == 0) {
		return nil, ErrInvalidKey
	}
	shared := crypto.FromECDSAPub(&ecdsa.PublicKey{Curve: crypto.S256(), X: x, Y: y})
	defer wipeBytes(shared)

	ikm := make([]byte, 0, len(ephemeralPub)+len(shared))
	ikm = append(ikm, ephemeralPub...)
	ikm = append(ikm, shared...)
	defer wipeBytes(ikm)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceLen)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

func zeroKey(k *ecdsa.PrivateKey) {
	if k == nil || k.D == nil {
		return
	}
	k.D.SetInt64(0)
}
