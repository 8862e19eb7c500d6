package provider

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublingo/sublingo/internal/config"
)

type memSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemSettings(values map[string]string) *memSettings {
	if values == nil {
		values = make(map[string]string)
	}
	return &memSettings{values: values}
}

func (m *memSettings) GetSetting(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memSettings) GetSettings(_ context.Context, keys []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make(map[string]string)
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			ret[k] = v
		}
	}
	return ret, nil
}

func (m *memSettings) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func TestRegistry_UnknownBackend(t *testing.T) {
	registry := NewRegistry(config.NewStore(newMemSettings(nil)))

	_, err := registry.Get(context.Background(), "babelfish")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegistry_MissingKeyIsConfigError(t *testing.T) {
	registry := NewRegistry(config.NewStore(newMemSettings(nil)))

	_, err := registry.Get(context.Background(), "openai")
	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "openai", configErr.Provider)
}

func TestRegistry_CachesInstances(t *testing.T) {
	store := config.NewStore(newMemSettings(map[string]string{
		"openai_api_key": "sk-test",
		"openai_model":   "gpt-4o-mini",
	}))
	registry := NewRegistry(store)

	first, err := registry.Get(context.Background(), "openai")
	require.NoError(t, err)
	second, err := registry.Get(context.Background(), "openai")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestRegistry_SettingsChangeRebuildsAffectedInstance(t *testing.T) {
	ctx := context.Background()
	store := config.NewStore(newMemSettings(map[string]string{
		"openai_api_key": "sk-test",
		"openai_model":   "gpt-4o-mini",
		"ollama_model":   "llama3.2",
	}))
	registry := NewRegistry(store)

	openai, err := registry.Get(ctx, "openai")
	require.NoError(t, err)
	ollama, err := registry.Get(ctx, "ollama")
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "openai_model", "gpt-4o"))

	rebuilt, err := registry.Get(ctx, "openai")
	require.NoError(t, err)
	assert.NotSame(t, openai, rebuilt)

	kept, err := registry.Get(ctx, "ollama")
	require.NoError(t, err)
	assert.Same(t, ollama, kept)
}

func TestRegistry_GlobalSettingDropsEverything(t *testing.T) {
	ctx := context.Background()
	store := config.NewStore(newMemSettings(map[string]string{
		"openai_api_key": "sk-test",
		"openai_model":   "gpt-4o-mini",
		"ollama_model":   "llama3.2",
	}))
	registry := NewRegistry(store)

	openai, err := registry.Get(ctx, "openai")
	require.NoError(t, err)
	ollama, err := registry.Get(ctx, "ollama")
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, config.KeyPromptTemplate, "New {sourceLanguage} to {targetLanguage} prompt"))

	rebuiltOpenAI, err := registry.Get(ctx, "openai")
	require.NoError(t, err)
	rebuiltOllama, err := registry.Get(ctx, "ollama")
	require.NoError(t, err)
	assert.NotSame(t, openai, rebuiltOpenAI)
	assert.NotSame(t, ollama, rebuiltOllama)
}

func TestRegistry_Names(t *testing.T) {
	registry := NewRegistry(config.NewStore(newMemSettings(nil)))

	names := registry.Names()
	assert.Len(t, names, 12)
	assert.Contains(t, names, "openai")
	assert.Contains(t, names, "google")
	assert.Contains(t, names, "deepl")
}
