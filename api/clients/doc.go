// Package clients implements the registry interfaces against a remote
// registry node. RegistryClient signs mutating requests with the caller's
// key and maps error responses back to the registry sentinel errors, so
// callers can use errors.Is the same way as with an in-process engine.
package clients
