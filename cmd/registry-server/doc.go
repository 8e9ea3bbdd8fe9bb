// Package main (cmd/registry-server) runs the registry node.
//
// The node serves the registry state machine over HTTP (see package
// httpserver for the API) with records held in memory. Callers authenticate
// mutations by signing the request body with their secp256k1 key; the
// recovered address is the owner or participant the call acts as.
//
// Prometheus metrics are served on --metrics-addr and pprof is mounted under
// /debug when --pprof is set.
//
// Example:
//
//	registry-server --listen-addr 0.0.0.0:8080 --metrics-addr 127.0.0.1:8090 --log-json
package main
