// Package registry implements the secret registry state machine and its
// on-chain binding.
//
// # State Machine
//
// Engine holds one record per SecretID and moves it through
//
//	NonExistent --RegisterSecret--> Active --CloseSecret--> Closed
//
// ConfirmReceipt adds the caller to the confirmed set of an active record.
// Every mutation runs as a single interfaces.SecretStore transaction: all
// validation and the write happen together or not at all. MemoryStore is the
// in-memory store; it serializes updates per secret.
//
// Callers are bound per session:
//
//	owner := engine.As(ownerAddr)
//	ev, err := owner.RegisterSecret(ctx, id, 2, participants, hash)
//
// # Events
//
// Mutations return their event directly. The EventLog additionally records
// every transition with a sequence number and notifies subscribers without
// blocking; a slow subscriber misses events rather than stalling writes.
//
// # Reconstruction Gate
//
// CanReconstruct(rec) is true iff the record exists, is active and has at
// least M confirmations.
//
// # On-chain Binding
//
// OnchainRegistryClient implements interfaces.SecretRegistry against a
// deployed SecretRegistry contract (see SecretRegistryABI). Contract reverts
// are mapped back onto the interfaces error sentinels; RPC failures are
// wrapped in interfaces.ErrLedgerUnavailable.
package registry
