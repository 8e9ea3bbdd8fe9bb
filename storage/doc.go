// Package storage distributes content-addressed artifacts, share bundles and
// signed key announcements, through pluggable backends.
//
// Content is identified by the SHA-256 hash of its bytes and each content type
// lives in its own namespace ("bundles", "announcements"). Backends are
// selected by URI:
//
//	file:///var/lib/secret-registry/
//	s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix/?region=eu-central-1&endpoint=minio:9000
//	ipfs://127.0.0.1:5001/?timeout=30s
//	vault://vault.example.com:8200/secret/registry?token_env=VAULT_TOKEN
//
// A MultiStorageBackend stores to every available backend and fetches from
// the first one holding the content:
//
//	factory := storage.NewStorageBackendFactory(logger)
//	backend, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{
//	    "file:///var/lib/secret-registry/",
//	    "s3://bundles/registry/?region=eu-central-1",
//	})
//
// The backends never see plaintext: a bundle carries only ciphertexts and the
// public commitment.
package storage
