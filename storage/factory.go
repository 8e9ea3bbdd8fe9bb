package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ruteri/threshold-secret-registry/interfaces"
)

// StorageBackendFactory creates storage backends from location URIs.
type StorageBackendFactory struct {
	log *slog.Logger
}

func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{log: logger}
}

// StorageBackendFor creates a backend from a URI of the form
// [scheme]://[auth@]host[:port][/path][?params]. See the package
// documentation for the supported schemes.
func (sf *StorageBackendFactory) StorageBackendFor(locationURI interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	if err := locationURI.Validate(); err != nil {
		return nil, err
	}
	u, err := url.Parse(string(locationURI))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return sf.createFileBackend(u)
	case "s3":
		return sf.createS3Backend(u)
	case "ipfs":
		return sf.createIPFSBackend(u)
	case "vault":
		return sf.createVaultBackend(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// CreateMultiBackend creates every backend it can from locationURIs and
// combines them. Invalid locations are logged and skipped.
func (sf *StorageBackendFactory) CreateMultiBackend(locationURIs []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locationURIs))
	for _, uri := range locationURIs {
		backend, err := sf.StorageBackendFor(uri)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", string(uri)))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}
	return NewMultiStorageBackend(backends, sf.log), nil
}

// file:///absolute/path or file://./relative/path
func (sf *StorageBackendFactory) createFileBackend(u *url.URL) (interfaces.StorageBackend, error) {
	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in %s", interfaces.ErrInvalidLocationURI, u.String())
	}
	return NewFileBackend(path, sf.log)
}

// s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix/?region=us-west-2&endpoint=host:9000
func (sf *StorageBackendFactory) createS3Backend(u *url.URL) (interfaces.StorageBackend, error) {
	query := u.Query()
	cfg := S3Config{
		Bucket:   u.Host,
		Prefix:   strings.TrimPrefix(u.Path, "/"),
		Region:   query.Get("region"),
		Endpoint: query.Get("endpoint"),
	}
	if u.User != nil {
		cfg.AccessKey = u.User.Username()
		cfg.SecretKey, _ = u.User.Password()
	} else {
		cfg.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		cfg.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	return NewS3Backend(cfg, sf.log)
}

// ipfs://host:port/?timeout=30s
func (sf *StorageBackendFactory) createIPFSBackend(u *url.URL) (interfaces.StorageBackend, error) {
	port := u.Port()
	if port == "" {
		port = "5001"
	}
	timeout := 30 * time.Second
	if raw := u.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
		timeout = parsed
	}
	return NewIPFSBackend(u.Hostname(), port, timeout, sf.log)
}

// vault://host:port/mount/path?token_env=VAULT_TOKEN&ca_cert=...&client_cert=...&client_key=...&insecure=true
func (sf *StorageBackendFactory) createVaultBackend(u *url.URL) (interfaces.StorageBackend, error) {
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: vault URI needs /mount/path", interfaces.ErrInvalidLocationURI)
	}

	query := u.Query()
	scheme := "https"
	if query.Get("insecure") == "true" {
		scheme = "http"
	}
	tokenEnv := query.Get("token_env")
	if tokenEnv == "" {
		tokenEnv = "VAULT_TOKEN"
	}

	return NewVaultBackend(VaultConfig{
		Address:    fmt.Sprintf("%s://%s", scheme, u.Host),
		MountPath:  parts[0],
		DataPath:   parts[1],
		Token:      os.Getenv(tokenEnv),
		CACert:     query.Get("ca_cert"),
		ClientCert: query.Get("client_cert"),
		ClientKey:  query.Get("client_key"),
	}, sf.log)
}

// namespace is the per content type directory, key prefix or KV path segment.
func namespace(ct interfaces.ContentType) string {
	return ct.String() + "s"
}
