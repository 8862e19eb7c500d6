// Package detector decides whether a media item needs new translation
// requests. It fingerprints the item's subtitle set to skip unchanged media,
// resolves the best source language from the files on disk, and asks the
// ledger to create a request per missing target.
package detector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/sublingo/sublingo/internal/catalog"
	"github.com/sublingo/sublingo/internal/config"
	"github.com/sublingo/sublingo/internal/ledger"
	"github.com/sublingo/sublingo/internal/subtitle"
	"github.com/sublingo/sublingo/pkg/log"
)

// candidate is one subtitle file found beside the media file.
type candidate struct {
	path      string
	language  string
	captioned bool
}

type Detector struct {
	catalog  catalog.Store
	ledger   *ledger.Ledger
	settings *config.Store
	reader   subtitle.Reader
}

func New(cat catalog.Store, ledg *ledger.Ledger, settings *config.Store) *Detector {
	return &Detector{
		catalog:  cat,
		ledger:   ledg,
		settings: settings,
		reader:   subtitle.NewReader(),
	}
}

// Evaluate runs one detection pass over a media item. It returns the number
// of requests created and the fingerprint of the item's current subtitle
// set. The fingerprint is persisted whenever it changed, requests or not, so
// an item with nothing to do is skipped cheaply next cycle.
func (d *Detector) Evaluate(ctx context.Context, item catalog.Item) (int, string, error) {
	if !item.Kind.Translatable() || item.Excluded {
		return 0, item.Fingerprint, nil
	}
	if item.MediaPath == "" {
		return 0, item.Fingerprint, nil
	}

	paths, err := d.enumerate(item.MediaPath)
	if err != nil {
		return 0, item.Fingerprint, fmt.Errorf("enumerate subtitles for %q: %w", item.MediaPath, err)
	}

	fingerprint := Fingerprint(paths)
	if fingerprint == item.Fingerprint {
		log.Debug("Item %s unchanged, skipping", item.ID)
		return 0, fingerprint, nil
	}

	created := d.evaluateChanged(ctx, item, paths)

	if err := d.catalog.UpdateFingerprint(ctx, item.ID, fingerprint); err != nil {
		return created, fingerprint, fmt.Errorf("persist fingerprint for %s: %w", item.ID, err)
	}
	return created, fingerprint, nil
}

// evaluateChanged handles an item whose subtitle set changed. Soft failures
// (no candidates, no configured languages, no usable source) create nothing;
// the caller still persists the fingerprint.
func (d *Detector) evaluateChanged(ctx context.Context, item catalog.Item, paths []string) int {
	if len(paths) == 0 {
		log.Debug("Item %s has no subtitles", item.ID)
		return 0
	}

	sourceLangs := d.settings.GetList(ctx, config.KeySourceLanguages)
	targetLangs := d.settings.GetList(ctx, config.KeyTargetLanguages)
	if len(sourceLangs) == 0 || len(targetLangs) == 0 {
		log.Info("No source or target languages configured, skipping item %s", item.ID)
		return 0
	}
	ignoreCaptions := d.settings.GetBool(ctx, config.KeyIgnoreCaptions, false)

	candidates := d.classify(item.MediaPath, paths)

	source := resolveSource(candidates, sourceLangs)
	if source == nil {
		log.Info("Item %s has no subtitle in a configured source language", item.ID)
		return 0
	}

	missing := missingTargets(candidates, targetLangs, ignoreCaptions)

	media := ledger.MediaRef{ID: item.ID, Kind: ledger.MediaKind(item.Kind)}
	created := 0
	for _, target := range missing {
		if target == source.language {
			continue
		}

		blocked, err := d.ledger.HasBlockingRequest(ctx, media, target)
		if err != nil {
			log.Error("Failed to check existing requests for item %s target %s: %v", item.ID, target, err)
			continue
		}
		if blocked {
			log.Debug("Item %s already has a request for %s", item.ID, target)
			continue
		}

		_, err = d.ledger.CreateRequest(ctx, ledger.CreateParams{
			Title:        item.Title,
			SourceLang:   source.language,
			TargetLang:   target,
			SubtitlePath: source.path,
			Media:        media,
		})
		if err != nil {
			if errors.Is(err, ledger.ErrDuplicate) {
				// A concurrent pass won the race; ours is a no-op.
				continue
			}
			log.Error("Failed to create request for item %s target %s: %v", item.ID, target, err)
			continue
		}
		created++
	}
	return created
}

// enumerate finds subtitle files sharing the media file's stem.
func (d *Detector) enumerate(mediaPath string) ([]string, error) {
	dir := filepath.Dir(mediaPath)
	mediaStem := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !subtitle.IsSupported(filepath.Ext(name)) {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if subtitle.MatchesMediaStem(stem, mediaStem) {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths, nil
}

// classify resolves each candidate's language, from its filename suffix when
// possible and from its content otherwise.
func (d *Detector) classify(mediaPath string, paths []string) []candidate {
	mediaStem := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))

	candidates := make([]candidate, 0, len(paths))
	for _, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		info := subtitle.ParseSuffix(stem, mediaStem)

		lang := info.Language
		if lang == "" {
			lang = d.detectContentLanguage(path)
		}
		candidates = append(candidates, candidate{path: path, language: lang, captioned: info.Captioned})
	}
	return candidates
}

// detectContentLanguage samples the cue text of a subtitle whose filename
// names no language.
func (d *Detector) detectContentLanguage(path string) string {
	file, err := d.reader.Read(path)
	if err != nil {
		log.Warn("Failed to read %s for language detection: %v", path, err)
		return ""
	}

	counts := make(map[string]int)
	sampled := 0
	for _, cue := range file.Cues {
		counts[whatlanggo.DetectLang(cue.Text()).Iso6391()]++
		sampled++
		if sampled >= 50 {
			break
		}
	}

	var topLang string
	var topCount int
	for lang, count := range counts {
		if count > topCount {
			topLang = lang
			topCount = count
		}
	}
	return topLang
}

// resolveSource picks the subtitle to translate from: the first configured
// source language present among the candidates, preferring a plain subtitle
// over a captioned one. When no plain file exists a caption variant is an
// acceptable fallback; the caption policy only governs which targets count as
// present, never source eligibility.
func resolveSource(candidates []candidate, sourceLangs []string) *candidate {
	for _, lang := range sourceLangs {
		var captioned *candidate
		for i := range candidates {
			if candidates[i].language != lang {
				continue
			}
			if !candidates[i].captioned {
				return &candidates[i]
			}
			if captioned == nil {
				captioned = &candidates[i]
			}
		}
		if captioned != nil {
			return captioned
		}
	}
	return nil
}

// missingTargets returns the configured targets with no subtitle present.
// With ignoreCaptions enabled a caption-only language still counts as
// missing.
func missingTargets(candidates []candidate, targetLangs []string, ignoreCaptions bool) []string {
	present := make(map[string]bool)
	for _, c := range candidates {
		if c.language == "" {
			continue
		}
		if c.captioned && ignoreCaptions {
			continue
		}
		present[c.language] = true
	}

	var missing []string
	for _, target := range targetLangs {
		if !present[target] {
			missing = append(missing, target)
		}
	}
	return missing
}

// Fingerprint hashes the sorted subtitle path list. Deterministic across
// enumeration orders and runs.
func Fingerprint(paths []string) string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, path := range sorted {
		h.Write([]byte(path))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
