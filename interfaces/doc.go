// Package interfaces defines core interfaces and types for the threshold secret
// registry, separating interface definitions from implementations.
//
// # Registry Interfaces
//
// SecretRegistry: The registry as seen by one authenticated caller. Mutations
// (RegisterSecret, ConfirmReceipt, CloseSecret) return the event they emitted.
//
// SecretReader: Non-mutating queries (GetSecret, CanReconstruct, IsParticipant,
// HasConfirmed).
//
// SecretStore: Transactional record persistence injected into the state machine.
//
// EventSource: Sequenced access to the append-only event log.
//
// # Storage Interfaces
//
// StorageBackend: Content-addressed storage for share bundles and key
// announcements across multiple backend types (file, S3, IPFS, Vault).
//
// StorageBackendFactory: Creates storage backends from URI strings.
//
// # Types
//
//   - SecretID: keccak256 of the secret's label
//   - SecretHash: owner-supplied commitment, opaque to the registry
//   - SecretRecord: per-secret registry state
//   - SecretRegistered/ReceiptConfirmed/SecretClosed: transition events
//   - ContentID: SHA-256 content address of stored artifacts
//
// # Errors
//
// Registry rejections are *RegistryError sentinels carrying a stable code and an
// ErrorKind. Use errors.Is against the sentinels and KindOf to classify.
package interfaces
