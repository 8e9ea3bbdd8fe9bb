package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/threshold-secret-registry/interfaces"
)

// IPFSBackend publishes content to an IPFS node. IPFS addresses content by
// CID, so the backend keeps the CID for every SHA-256 content ID it stored and
// also pins content under an MFS path derived from the content ID, which
// lets another process resolve it.
type IPFSBackend struct {
	shell       *shell.Shell
	apiAddr     string
	log         *slog.Logger
	locationURI string

	mu   sync.RWMutex
	cids map[interfaces.ContentID]string
}

// NewIPFSBackend connects to the IPFS HTTP API at host:port.
func NewIPFSBackend(host, port string, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	if host == "" {
		return nil, fmt.Errorf("%w: missing IPFS host", interfaces.ErrInvalidLocationURI)
	}
	apiAddr := fmt.Sprintf("%s:%s", host, port)
	sh := shell.NewShellWithClient(apiAddr, &http.Client{Timeout: timeout})

	return &IPFSBackend{
		shell:       sh,
		apiAddr:     apiAddr,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/?timeout=%s", apiAddr, timeout),
		cids:        make(map[interfaces.ContentID]string),
	}, nil
}

// Fetch resolves the content through its MFS path and checks its hash.
func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	if !b.shell.IsUp() {
		return nil, interfaces.ErrBackendUnavailable
	}

	var (
		reader io.ReadCloser
		err    error
	)
	b.mu.RLock()
	cid, known := b.cids[id]
	b.mu.RUnlock()
	if known {
		reader, err = b.shell.Cat("/ipfs/" + cid)
	} else {
		reader, err = b.shell.FilesRead(ctx, b.mfsPath(id, contentType))
	}
	if err != nil {
		b.log.Debug("Content not found in IPFS",
			slog.String("contentID", id.String()),
			"err", err)
		return nil, interfaces.ErrContentNotFound
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}
	if interfaces.ComputeID(data) != id {
		return nil, fmt.Errorf("IPFS content for %s does not match its content ID", id.String())
	}

	b.log.Debug("Fetched content from IPFS",
		slog.String("contentID", id.String()),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return data, nil
}

// Store adds the content, pins it and links it into MFS.
func (b *IPFSBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	if !b.shell.IsUp() {
		return id, interfaces.ErrBackendUnavailable
	}

	cid, err := b.shell.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return id, fmt.Errorf("failed to add data to IPFS: %w", err)
	}

	dir := "/" + namespace(contentType)
	if err := b.shell.FilesMkdir(ctx, dir, shell.FilesMkdir.Parents(true)); err != nil {
		return id, fmt.Errorf("failed to create MFS directory: %w", err)
	}
	target := b.mfsPath(id, contentType)
	if _, err := b.shell.FilesStat(ctx, target); err != nil {
		if err := b.shell.FilesCp(ctx, "/ipfs/"+cid, target); err != nil {
			return id, fmt.Errorf("failed to link content into MFS: %w", err)
		}
	}

	b.mu.Lock()
	b.cids[id] = cid
	b.mu.Unlock()

	b.log.Debug("Stored content in IPFS",
		slog.String("ipfsCID", cid),
		slog.String("contentID", id.String()),
		slog.String("contentType", contentType.String()))
	return id, nil
}

func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

func (b *IPFSBackend) Name() string {
	return "ipfs-" + b.apiAddr
}

func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func (b *IPFSBackend) mfsPath(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return fmt.Sprintf("/%s/%s", namespace(contentType), id.String())
}
