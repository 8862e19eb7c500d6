// Package provider normalizes the heterogeneous translation backends behind
// one contract. Each backend is a strategy built by the registry from the
// current settings; instances are immutable after construction and safe for
// concurrent use.
package provider

import (
	"context"
	"time"

	"github.com/sublingo/sublingo/internal/config"
)

// Translator is the scalar contract every backend implements. before/after
// carry neighbouring subtitle lines used purely for coherence; implementations
// must instruct the backend never to translate or echo them.
type Translator interface {
	Name() string
	Translate(ctx context.Context, text, sourceLang, targetLang string, before, after []string) (string, error)
}

// BatchTranslator is implemented by backends that can translate a structured
// batch in one call. The returned map is keyed by unit position and contains
// only positions that were requested with ContextOnly=false.
type BatchTranslator interface {
	Translator
	TranslateBatch(ctx context.Context, units []BatchUnit, sourceLang, targetLang string) (map[int]string, error)
}

// ModelLister is implemented by backends that can enumerate their models for
// configuration UIs. Failures degrade to descriptive errors.
type ModelLister interface {
	GetModels(ctx context.Context) ([]string, error)
}

// BatchUnit is one line of a batched translation request. Position is the
// cue's stable ordinal within the subtitle.
type BatchUnit struct {
	Position    int    `json:"position"`
	Line        string `json:"line"`
	ContextOnly bool   `json:"contextOnly"`
}

// Settings is the configuration snapshot a strategy is built from. A strategy
// never re-reads settings after construction; the registry rebuilds instances
// when relevant keys change.
type Settings struct {
	APIKey         string
	Model          string
	BaseURL        string
	Credentials    string
	PromptTemplate string
	Retry          RetryPolicy
	Timeout        time.Duration
}

const defaultTimeout = 120 * time.Second

// providerFields are the per-backend settings keys a strategy is built from.
var providerFields = []string{"api_key", "model", "base_url", "credentials"}

// loadSettings snapshots the configuration for one backend from the store.
func loadSettings(ctx context.Context, store *config.Store, name string) Settings {
	keys := make([]string, 0, len(providerFields))
	for _, f := range providerFields {
		keys = append(keys, config.ProviderKey(name, f))
	}
	values := store.GetMany(ctx, keys)

	return Settings{
		APIKey:         values[config.ProviderKey(name, "api_key")],
		Model:          values[config.ProviderKey(name, "model")],
		BaseURL:        values[config.ProviderKey(name, "base_url")],
		Credentials:    values[config.ProviderKey(name, "credentials")],
		PromptTemplate: store.Get(ctx, config.KeyPromptTemplate),
		Retry:          loadRetryPolicy(ctx, store),
		Timeout:        defaultTimeout,
	}
}
