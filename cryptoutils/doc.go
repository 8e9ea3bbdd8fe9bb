// Package cryptoutils provides the cryptographic primitives of the threshold
// secret registry: threshold splitting, share encryption, commitments and keys.
//
// # Threshold Splitting
//
// SplitSecret splits a secret into N shares any M of which reconstruct it,
// using Shamir's scheme over GF(2^8) (github.com/hashicorp/vault/shamir).
// Fewer than M shares reveal nothing about the secret. A threshold of 1 is
// handled by replication: every share carries the secret.
//
// Encoded share format:
//
//	[version (1 byte)][threshold (1 byte)][payload]
//
// CombineShares rejects mixed splits, duplicates and sets smaller than the
// threshold recorded in the shares.
//
// # Share Encryption
//
// EncryptShare/DecryptShare implement ECIES on secp256k1:
//
//   - ECDH between a fresh ephemeral key and the recipient key
//   - HKDF-SHA256 over ephemeralPub || sharedPoint
//   - AES-256-GCM with a 16-byte nonce
//
// Ciphertext layout:
//
//	[ephemeral pubkey (65)][nonce (16)][tag (16)][ciphertext]
//
// # Keys
//
// Participants encrypt to a dedicated key published with a KeyAnnouncement
// signed by their wallet key. LegacyPubkeyFromSignature recovers the wallet
// key itself from a signature over LegacyExportMessage, for participants who
// cannot publish a separate key.
//
// # Commitments
//
// CommitSecret computes keccak256("hash:" + secret + ":" + salt). The
// registry stores it opaquely; holders check it after reconstruction.
package cryptoutils
