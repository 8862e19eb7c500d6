// Package catalog is the read-mostly view of the media library this service
// translates for. Sync keeps it aligned with the configured media
// directories; the detector only consumes items and writes back fingerprints.
package catalog

import "context"

type Kind string

const (
	KindMovie   Kind = "movie"
	KindShow    Kind = "show"
	KindSeason  Kind = "season"
	KindEpisode Kind = "episode"
)

// Translatable reports whether items of this kind carry media files directly.
func (k Kind) Translatable() bool {
	return k == KindMovie || k == KindEpisode
}

// Item is one node of the library tree. Movies are roots; episodes hang off
// seasons which hang off shows.
type Item struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	ParentID    string `json:"parentId,omitempty"`
	Title       string `json:"title"`
	MediaPath   string `json:"mediaPath,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Excluded    bool   `json:"excluded"`
}

// Store is the catalog persistence contract.
type Store interface {
	// ListTranslatable returns included movie/episode items.
	ListTranslatable(ctx context.Context) ([]Item, error)
	GetItem(ctx context.Context, id string) (Item, error)
	UpsertItem(ctx context.Context, item Item) error
	// UpdateFingerprint is the change detector's only write path.
	UpdateFingerprint(ctx context.Context, id string, fingerprint string) error
	// SetExcluded flips the flag on the item and, at mutation time, on all of
	// its descendants.
	SetExcluded(ctx context.Context, id string, excluded bool) error
}
