/*
Package api defines the wire format of the registry node HTTP API.

Mutating requests (register, confirm, close) carry a JSON body signed by the
caller. The signature travels in the X-Registry-Signature header as
"<address>:<signature>", where the signature is an EIP-191 signature over
the keccak256 hash of the body. The recovered address is the registry caller.

# Endpoints

	POST /api/v1/secrets                                  RegisterRequest -> SecretRegistered
	POST /api/v1/secrets/{secret_id}/confirm              SecretRequest   -> ReceiptConfirmed
	POST /api/v1/secrets/{secret_id}/close                SecretRequest   -> SecretClosed
	GET  /api/v1/secrets/{secret_id}                      SecretInfo
	GET  /api/v1/secrets/{secret_id}/can_reconstruct      CanReconstructResponse
	GET  /api/v1/secrets/{secret_id}/participants/{addr}  ParticipantStatus
	GET  /api/v1/events?from=N                            []Event

# Errors

Failures are returned as ErrorResponse with the registry error code:

	{"code": "AlreadyConfirmed", "kind": "state", "error": "AlreadyConfirmed"}

Validation errors map to 400, authorization errors to 403, UnknownSecret to
404, other state errors to 409 and signature failures to 401.

The clients subpackage implements interfaces.SecretRegistry over this API.
*/
package api
