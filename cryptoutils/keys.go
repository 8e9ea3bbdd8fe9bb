package cryptoutils

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/threshold-secret-registry/interfaces"
)

// LegacyExportMessage is the fixed message participants sign to publish their
// wallet public key as the encryption key.
const LegacyExportMessage = "Export encryption pubkey for SecretRegistry"

var ErrInvalidSignature = interfaces.NewCryptoError("invalid signature")

// ParsePublicKey accepts a secp256k1 point as raw bytes (65 uncompressed or
// 33 compressed) or as their hex text, with or without 0x.
func ParsePublicKey(key []byte) (*ecdsa.PublicKey, error) {
	raw := key
	if len(key) != 65 && len(key) != 33 {
		decoded, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(string(key)), "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		raw = decoded
	}

	switch len(raw) {
	case 65:
		pub, err := crypto.UnmarshalPubkey(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return pub, nil
	case 33:
		pub, err := crypto.DecompressPubkey(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidKey, len(raw))
	}
}

// PublicKeyHex returns the 0x-prefixed uncompressed encoding.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return "0x" + hex.EncodeToString(crypto.FromECDSAPub(pub))
}

// GenerateEncryptionKey creates a secp256k1 keypair dedicated to share encryption.
func GenerateEncryptionKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// PrivateKeyFromHex parses a hex private key, with or without 0x.
func PrivateKeyFromHex(text string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(text), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// PrivateKeyHex returns the hex encoding without 0x.
func PrivateKeyHex(key *ecdsa.PrivateKey) string {
	return hex.EncodeToString(crypto.FromECDSA(key))
}

// SignText produces a 65-byte EIP-191 personal signature with V in {27, 28}.
func SignText(message []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverText returns the public key that produced an EIP-191 signature over message.
func RecoverText(message, sig []byte) (*ecdsa.PublicKey, error) {
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return pub, nil
}

// LegacyPubkeyFromSignature recovers the wallet public key from a signature
// over LegacyExportMessage. The recovered key is the signing key itself, so
// shares encrypted to it are only as safe as the wallet key.
func LegacyPubkeyFromSignature(sig []byte) (*ecdsa.PublicKey, error) {
	return RecoverText([]byte(LegacyExportMessage), sig)
}

// KeyAnnouncement binds an encryption public key to a participant address
// through a signature by the address's key.
type KeyAnnouncement struct {
	Address          common.Address `json:"address"`
	EncryptionPubkey string         `json:"pubkey"`
	Signature        string         `json:"signature"`
}

func announcementMessage(addr common.Address, pubkeyHex string) []byte {
	return []byte(fmt.Sprintf("threshold-secret-registry encryption key v1\naddress:%s\npubkey:%s",
		strings.ToLower(addr.Hex()), strings.ToLower(pubkeyHex)))
}

// NewKeyAnnouncement signs encryptionPub with the participant's signing key.
func NewKeyAnnouncement(signer *ecdsa.PrivateKey, encryptionPub *ecdsa.PublicKey) (*KeyAnnouncement, error) {
	addr := crypto.PubkeyToAddress(signer.PublicKey)
	pubHex := PublicKeyHex(encryptionPub)
	sig, err := SignText(announcementMessage(addr, pubHex), signer)
	if err != nil {
		return nil, fmt.Errorf("failed to sign announcement: %w", err)
	}
	return &KeyAnnouncement{
		Address:          addr,
		EncryptionPubkey: pubHex,
		Signature:        "0x" + hex.EncodeToString(sig),
	}, nil
}

// Verify checks that Signature was made by Address over EncryptionPubkey and
// returns the parsed encryption key.
func (a *KeyAnnouncement) Verify() (*ecdsa.PublicKey, error) {
	pub, err := ParsePublicKey([]byte(a.EncryptionPubkey))
	if err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(a.Signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	signer, err := RecoverText(announcementMessage(a.Address, PublicKeyHex(pub)), sig)
	if err != nil {
		return nil, err
	}
	if crypto.PubkeyToAddress(*signer) != a.Address {
		return nil, fmt.Errorf("%w: signed by %s, announced for %s", ErrInvalidSignature,
			crypto.PubkeyToAddress(*signer).Hex(), a.Address.Hex())
	}
	return pub, nil
}
