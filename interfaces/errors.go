package interfaces

import (
	"errors"
)

// ErrorKind groups registry outcomes by what the caller can do about them.
type ErrorKind string

const (
	// KindValidation marks input errors; fix the request and resubmit.
	KindValidation ErrorKind = "validation"
	// KindAuthorization marks identity errors; switch identity.
	KindAuthorization ErrorKind = "authorization"
	// KindState marks conflicts with current state; refresh and re-evaluate.
	KindState ErrorKind = "state"
	// KindCrypto marks key, share and ciphertext errors.
	KindCrypto ErrorKind = "crypto"
	// KindUnavailable marks transport failures; retry later.
	KindUnavailable ErrorKind = "unavailable"
	// KindUnknown is anything else.
	KindUnknown ErrorKind = "unknown"
)

// RegistryError is a registry rejection identified by a stable code.
type RegistryError struct {
	Code string
	Kind ErrorKind
}

func (e *RegistryError) Error() string {
	return e.Code
}

var (
	ErrAlreadyExists        = &RegistryError{Code: "AlreadyExists", Kind: KindState}
	ErrInvalidThreshold     = &RegistryError{Code: "InvalidThreshold", Kind: KindValidation}
	ErrDuplicateParticipant = &RegistryError{Code: "DuplicateParticipant", Kind: KindValidation}
	ErrZeroParticipant      = &RegistryError{Code: "ZeroParticipant", Kind: KindValidation}
	ErrUnknownSecret        = &RegistryError{Code: "UnknownSecret", Kind: KindState}
	ErrNotParticipant       = &RegistryError{Code: "NotParticipant", Kind: KindAuthorization}
	ErrAlreadyConfirmed     = &RegistryError{Code: "AlreadyConfirmed", Kind: KindState}
	ErrNotActive            = &RegistryError{Code: "NotActive", Kind: KindState}
	ErrNotOwner             = &RegistryError{Code: "NotOwner", Kind: KindAuthorization}

	// ErrLedgerUnavailable wraps transport and RPC failures. Retryable.
	ErrLedgerUnavailable = &RegistryError{Code: "LedgerUnavailable", Kind: KindUnavailable}
)

// RegistryErrors lists every registry sentinel, keyed by code.
var RegistryErrors = map[string]*RegistryError{
	ErrAlreadyExists.Code:        ErrAlreadyExists,
	ErrInvalidThreshold.Code:     ErrInvalidThreshold,
	ErrDuplicateParticipant.Code: ErrDuplicateParticipant,
	ErrZeroParticipant.Code:      ErrZeroParticipant,
	ErrUnknownSecret.Code:        ErrUnknownSecret,
	ErrNotParticipant.Code:       ErrNotParticipant,
	ErrAlreadyConfirmed.Code:     ErrAlreadyConfirmed,
	ErrNotActive.Code:            ErrNotActive,
	ErrNotOwner.Code:             ErrNotOwner,
	ErrLedgerUnavailable.Code:    ErrLedgerUnavailable,
}

// CryptoError marks failures of the splitter and encryptor.
type CryptoError struct {
	msg string
}

func (e *CryptoError) Error() string {
	return e.msg
}

// NewCryptoError creates a sentinel classified as KindCrypto.
func NewCryptoError(msg string) error {
	return &CryptoError{msg: msg}
}

// KindOf classifies err, looking through wrapping.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var re *RegistryError
	if errors.As(err, &re) {
		return re.Kind
	}
	var ce *CryptoError
	if errors.As(err, &ce) {
		return KindCrypto
	}
	return KindUnknown
}

// CodeOf returns the registry code carried by err, or "".
func CodeOf(err error) string {
	var re *RegistryError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
