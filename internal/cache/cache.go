// Package cache stores raw API responses keyed by window, usage point and
// endpoint, so a window that was fetched once is never fetched again.
package cache

import (
	"context"
	"fmt"

	"github.com/jgoulah/meterfetch/pkg/models"
)

// Cache is a first-writer-wins store of raw payloads
type Cache interface {
	// Lookup returns the payload stored under key and whether it exists
	Lookup(ctx context.Context, key Key) (models.RawPayload, bool, error)
	// Store saves payload under key. An existing entry is left untouched
	// and Store returns nil.
	Store(ctx context.Context, key Key, payload models.RawPayload) error
}

// Key identifies one fetched window. It never contains the access token.
type Key struct {
	Window       models.DateWindow
	UsagePointID string
	Endpoint     models.EndpointKind
}

// KeyFor derives the cache key of a request
func KeyFor(req models.FetchRequest) Key {
	return Key{Window: req.Window, UsagePointID: req.UsagePointID, Endpoint: req.Endpoint}
}

// String renders the key as <start>-<end>_<usage point>_<endpoint>
func (k Key) String() string {
	return fmt.Sprintf("%s-%s_%s_%s",
		k.Window.Start.Format(models.DateLayout),
		k.Window.End.Format(models.DateLayout),
		k.UsagePointID,
		k.Endpoint,
	)
}
