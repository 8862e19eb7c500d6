package provider

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/sublingo/sublingo/internal/config"
	"github.com/sublingo/sublingo/pkg/log"
)

// Factory builds one backend strategy from a settings snapshot.
type Factory func(ctx context.Context, settings Settings) (Translator, error)

// Registry owns the closed set of backend factories and caches built
// instances. Construction is two-phase: settings are snapshotted, the factory
// validates them, and the resulting instance is immutable. The registry
// subscribes to settings changes and drops affected instances so the next
// Get rebuilds from current configuration.
type Registry struct {
	store     *config.Store
	factories map[string]Factory

	mu        sync.Mutex
	instances map[string]Translator
}

func NewRegistry(store *config.Store) *Registry {
	r := &Registry{
		store: store,
		factories: map[string]Factory{
			"openai":         newOpenAI,
			"openrouter":     newOpenRouter,
			"deepseek":       newDeepSeek,
			"lmstudio":       newLMStudio,
			"localai":        newLocalAI,
			"anthropic":      newAnthropic,
			"gemini":         newGemini,
			"ollama":         newOllama,
			"deepl":          newDeepL,
			"libretranslate": newLibreTranslate,
			"mymemory":       newMyMemory,
			"google":         newGoogle,
		},
		instances: make(map[string]Translator),
	}
	store.Subscribe(r.onSettingsChanged)
	return r
}

// Get returns the strategy for name, building it from current settings on
// first use. Unknown names are a configuration error, never retried.
func (r *Registry) Get(ctx context.Context, name string) (Translator, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if instance, ok := r.instances[name]; ok {
		return instance, nil
	}

	instance, err := factory(ctx, loadSettings(ctx, r.store, name))
	if err != nil {
		return nil, err
	}
	r.instances[name] = instance
	return instance, nil
}

// Names lists the registered backend identifiers, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// globalKeys affect every backend; changing one drops all cached instances.
var globalKeys = map[string]struct{}{
	config.KeyPromptTemplate:  {},
	config.KeyMaxRetries:      {},
	config.KeyRetryBaseDelay:  {},
	config.KeyRetryMultiplier: {},
	config.KeyRetryMaxDelay:   {},
}

func (r *Registry) onSettingsChanged(keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range keys {
		if _, ok := globalKeys[key]; ok {
			for name := range r.instances {
				r.evictLocked(name)
			}
			return
		}
		for name := range r.factories {
			if strings.HasPrefix(key, name+"_") {
				r.evictLocked(name)
			}
		}
	}
}

func (r *Registry) evictLocked(name string) {
	instance, ok := r.instances[name]
	if !ok {
		return
	}
	delete(r.instances, name)
	if closer, ok := instance.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Warn("Failed to close %s strategy: %v", name, err)
		}
	}
}

// Close releases every cached instance; used on shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.instances {
		r.evictLocked(name)
	}
}
