package interfaces

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ContentID is the SHA-256 hash addressing a stored artifact.
type ContentID [32]byte

// NewContentIDFromHex parses a 64-character hex content id.
func NewContentIDFromHex(source string) (ContentID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContentID{}, errors.New("invalid content ID length: hex string must be 64 characters")
	}

	hashBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ContentID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var hash [32]byte
	copy(hash[:], hashBytes)
	return ContentID(hash), nil
}

// ComputeID calculates the content ID of data.
func ComputeID(data []byte) ContentID {
	return ContentID(sha256.Sum256(data))
}

// String returns hex representation.
func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// ContentType indicates storage namespace.
type ContentType int

const (
	// BundleType for share bundles
	BundleType ContentType = iota
	// AnnouncementType for signed encryption key announcements
	AnnouncementType
)

// String returns type name.
func (ct ContentType) String() string {
	switch ct {
	case BundleType:
		return "bundle"
	case AnnouncementType:
		return "announcement"
	default:
		return "unknown"
	}
}

// StorageBackendLocation is a backend URI: [scheme]://[auth@]host[:port][/path][?params]
type StorageBackendLocation string

// SupportedStorageSchemes lists the schemes understood by the storage factory.
var SupportedStorageSchemes = []string{"file", "s3", "ipfs", "vault"}

// Validate checks that the location parses and names a supported scheme.
func (loc StorageBackendLocation) Validate() error {
	u, err := url.Parse(string(loc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}
	for _, s := range SupportedStorageSchemes {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, u.Scheme)
}

var (
	// ErrContentNotFound is returned when requested content cannot be found in the storage backend.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// StorageBackend provides content-addressed data storage.
type StorageBackend interface {
	// Fetch retrieves data by content ID and type.
	Fetch(ctx context.Context, id ContentID, contentType ContentType) ([]byte, error)

	// Store saves data and returns its content ID.
	Store(ctx context.Context, data []byte, contentType ContentType) (ContentID, error)

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// StorageBackendFactory creates storage backends.
type StorageBackendFactory interface {
	// StorageBackendFor creates backend from URI.
	// Supports file://, s3://, ipfs://, vault://
	StorageBackendFor(locationURI StorageBackendLocation) (StorageBackend, error)

	// CreateMultiBackend creates aggregated storage backend.
	CreateMultiBackend(locationURIs []StorageBackendLocation) (StorageBackend, error)
}
