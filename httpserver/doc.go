/*
Package httpserver implements the registry node: an HTTP server exposing the
threshold secret registry state machine to owners, participants and
auditors.

Mutating endpoints are authenticated by the X-Registry-Signature header, a
secp256k1 signature over the request body in the "<address>:<signature>"
form produced by flashbots/go-utils/signature. The recovered address is the
caller: it becomes the owner on registration, and it is the participant on
confirmation. Confirm and close bodies repeat the secret id from the path so
a signature cannot be replayed against another secret.

API Endpoints:

  - POST /api/v1/secrets: register a secret
  - POST /api/v1/secrets/{secret_id}/confirm: confirm receipt of a share
  - POST /api/v1/secrets/{secret_id}/close: close a secret (owner only)
  - GET /api/v1/secrets/{secret_id}: secret record
  - GET /api/v1/secrets/{secret_id}/can_reconstruct: quorum gate
  - GET /api/v1/secrets/{secret_id}/participants/{address}: participant status
  - GET /api/v1/events?from=N: event log from sequence number N

Rejections carry an api.ErrorResponse body with the registry error code.
Status codes follow api.StatusFor: validation errors are 400, bad signatures
401, authorization errors 403, UnknownSecret 404 and state conflicts 409.

Health and diagnostic endpoints:

  - GET /livez: liveness check
  - GET /readyz: readiness check
  - GET /drain: mark the server not ready; registry writes get 503 until /undrain
  - GET /undrain: mark the server ready
  - /debug/pprof: profiling, when enabled

Usage:

	engine := registry.NewEngine(registry.NewMemoryStore(), registry.NewEventLog(logger), logger)
	handler := httpserver.NewHandler(engine, engine.Events(), logger)
	srv, err := httpserver.New(cfg, handler)
	if err != nil {
		log.Fatal(err)
	}
	srv.RunInBackground()
	defer srv.Shutdown()
*/
package httpserver
