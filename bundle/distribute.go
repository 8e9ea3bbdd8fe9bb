package bundle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ruteri/threshold-secret-registry/cryptoutils"
	"github.com/ruteri/threshold-secret-registry/interfaces"
)

// Publish stores the bundle and returns its content ID.
func Publish(ctx context.Context, backend interfaces.StorageBackend, b *ShareBundle) (interfaces.ContentID, error) {
	data, err := b.Marshal()
	if err != nil {
		return interfaces.ContentID{}, err
	}
	id, err := backend.Store(ctx, data, interfaces.BundleType)
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("failed to store bundle in %s: %w", backend.Name(), err)
	}
	return id, nil
}

// Fetch loads and validates a bundle by content ID.
func Fetch(ctx context.Context, backend interfaces.StorageBackend, id interfaces.ContentID) (*ShareBundle, error) {
	data, err := backend.Fetch(ctx, id, interfaces.BundleType)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// PublishAnnouncement stores a signed key announcement.
func PublishAnnouncement(ctx context.Context, backend interfaces.StorageBackend, a *cryptoutils.KeyAnnouncement) (interfaces.ContentID, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return interfaces.ContentID{}, err
	}
	return backend.Store(ctx, data, interfaces.AnnouncementType)
}

// FetchAnnouncement loads an announcement and verifies its signature.
func FetchAnnouncement(ctx context.Context, backend interfaces.StorageBackend, id interfaces.ContentID) (*cryptoutils.KeyAnnouncement, error) {
	data, err := backend.Fetch(ctx, id, interfaces.AnnouncementType)
	if err != nil {
		return nil, err
	}
	var a cryptoutils.KeyAnnouncement
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode announcement: %w", err)
	}
	if _, err := a.Verify(); err != nil {
		return nil, err
	}
	return &a, nil
}
