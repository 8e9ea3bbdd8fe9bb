package cryptoutils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/threshold-secret-registry/interfaces"
)

// SaltSize is the number of random bytes in a generated salt.
const SaltSize = 16

// NewSalt returns SaltSize random bytes as hex text.
func NewSalt() (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(salt), nil
}

// CommitSecret computes keccak256("hash:" + secret + ":" + salt).
//
// This binds the owner to a secret value; it does not prove knowledge of the
// secret and the registry cannot check it.
func CommitSecret(secret []byte, salt string) interfaces.SecretHash {
	preimage := make([]byte, 0, len("hash:")+len(secret)+1+len(salt))
	preimage = append(preimage, "hash:"...)
	preimage = append(preimage, secret...)
	preimage = append(preimage, ':')
	preimage = append(preimage, salt...)
	defer wipeBytes(preimage)
	return interfaces.SecretHash(crypto.Keccak256Hash(preimage))
}

// VerifyCommitment reports whether secret and salt open the commitment.
func VerifyCommitment(commitment interfaces.SecretHash, secret []byte, salt string) bool {
	got := CommitSecret(secret, salt)
	return subtle.ConstantTimeCompare(got[:], commitment[:]) == 1
}
