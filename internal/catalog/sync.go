package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/sublingo/sublingo/pkg/log"
)

var videoExtensions = map[string]struct{}{
	".mkv":  {},
	".mp4":  {},
	".avi":  {},
	".m4v":  {},
	".mov":  {},
	".webm": {},
}

// IsVideo reports whether ext (with leading dot) is a recognized media
// container extension.
func IsVideo(ext string) bool {
	_, ok := videoExtensions[strings.ToLower(ext)]
	return ok
}

// Sync walks the configured media directories and upserts one item per video
// file found. Files nested at least three levels deep are read as
// show/season/episode; anything shallower is a movie. Existing items keep
// their fingerprint and exclusion flag.
func Sync(ctx context.Context, store Store, dirs []string) (int, error) {
	synced := 0
	for _, dir := range dirs {
		n, err := syncDir(ctx, store, dir)
		synced += n
		if err != nil {
			return synced, err
		}
	}
	return synced, nil
}

func syncDir(ctx context.Context, store Store, root string) (int, error) {
	synced := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !IsVideo(filepath.Ext(d.Name())) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if err := syncVideo(ctx, store, root, rel, path); err != nil {
			log.Warn("Failed to sync %s: %v", path, err)
			return nil
		}
		synced++
		return nil
	})
	if err != nil {
		return synced, fmt.Errorf("walk %s: %w", root, err)
	}
	return synced, nil
}

func syncVideo(ctx context.Context, store Store, root, rel, path string) error {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if len(parts) < 3 {
		return upsertPreserving(ctx, store, Item{
			ID:        itemID(root, rel),
			Kind:      KindMovie,
			Title:     stem,
			MediaPath: path,
		})
	}

	showRel := parts[0]
	seasonRel := filepath.ToSlash(filepath.Join(parts[0], parts[1]))
	showID := itemID(root, showRel)
	seasonID := itemID(root, seasonRel)

	if err := upsertPreserving(ctx, store, Item{ID: showID, Kind: KindShow, Title: parts[0]}); err != nil {
		return err
	}
	if err := upsertPreserving(ctx, store, Item{ID: seasonID, Kind: KindSeason, ParentID: showID, Title: parts[1]}); err != nil {
		return err
	}
	return upsertPreserving(ctx, store, Item{
		ID:        itemID(root, rel),
		Kind:      KindEpisode,
		ParentID:  seasonID,
		Title:     stem,
		MediaPath: path,
	})
}

// upsertPreserving keeps the fingerprint and exclusion flag of an item that
// already exists; the walk must not undo a detector write or an operator's
// exclusion.
func upsertPreserving(ctx context.Context, store Store, item Item) error {
	existing, err := store.GetItem(ctx, item.ID)
	if err == nil && existing.ID == item.ID {
		item.Fingerprint = existing.Fingerprint
		item.Excluded = existing.Excluded
	}
	return store.UpsertItem(ctx, item)
}

func itemID(root, rel string) string {
	return filepath.ToSlash(filepath.Join(filepath.Base(root), rel))
}
