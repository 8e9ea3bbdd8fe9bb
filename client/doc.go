// Package client is the caller-side façade over a registry binding. It
// derives secret ids from labels, submits registrations, confirmations and
// closes as asynchronous writes with at most one in flight per secret and
// caller, and composes the caller's view of a secret into a StatusView that
// stays usable when the ledger is unreachable.
//
// Describe turns any registry, crypto or transport error into a message with
// the next action the caller can take.
package client
