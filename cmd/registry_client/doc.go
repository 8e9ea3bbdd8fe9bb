// Package main (cmd/registry_client) is the participant and owner command line
// for the secret registry.
//
// Ledger commands talk to a registry node (--ledger http) or to the
// SecretRegistry contract (--ledger onchain) and sign with --private-key:
//
//	register         register a secret from a bundle.json or from explicit flags
//	confirm          confirm receipt of the caller's share
//	close            close a secret owned by the caller
//	status           show the record, the caller's relation to it and the gate
//	can-reconstruct  report whether M confirmations are recorded
//	events           list registry events, starting at --from
//
// Key commands run offline:
//
//	keygen                generate a dedicated encryption keypair
//	announce-key          sign an encryption key with the signing key, optionally publishing it
//	export-legacy-pubkey  derive the signing public key from a signature (legacy mode)
//	decrypt-share         open the caller's share from a bundle
//
// Registry errors are printed with a short description and the suggested next
// step, for example "switch-identity" when a non-owner tries to close a secret.
//
// Example:
//
//	registry-client register --bundle out/0x.../bundle.json --private-key $KEY
//	registry-client decrypt-share --bundle out/0x.../bundle.json --private-key $KEY --encryption-key $ENC
//	registry-client confirm --label secret#1 --private-key $KEY
package main
