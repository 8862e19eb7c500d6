package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sublingo/sublingo/pkg/log"
)

// Well-known settings keys. Missing keys mean "feature disabled" rather than
// an error, except where a backend requires credentials.
const (
	KeyServiceType     = "service_type"
	KeySourceLanguages = "source_languages"
	KeyTargetLanguages = "target_languages"
	KeyIgnoreCaptions  = "ignore_captions"
	KeyBatchEnabled    = "batch_enabled"
	KeyBatchSize       = "batch_size"
	KeyContextBefore   = "context_before"
	KeyContextAfter    = "context_after"
	KeyPromptTemplate  = "prompt_template"
	KeyMaxRetries      = "max_retries"
	KeyRetryBaseDelay  = "retry_base_delay_ms"
	KeyRetryMultiplier = "retry_multiplier"
	KeyRetryMaxDelay   = "retry_max_delay_ms"
	KeyScanCron        = "scan_cron"
)

// ProviderKey builds the per-backend settings key, e.g. "openai_api_key".
func ProviderKey(provider, field string) string {
	return fmt.Sprintf("%s_%s", provider, field)
}

// Backend persists settings; the SQLite implementation lives in storage.
type Backend interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	GetSettings(ctx context.Context, keys []string) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Subscriber is notified with the keys that changed.
type Subscriber func(keys []string)

// Store is an application-level cache over the settings backend with change
// notification fan-out.
type Store struct {
	backend Backend

	mu    sync.RWMutex
	cache map[string]string
	subs  []Subscriber
}

func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		cache:   make(map[string]string),
	}
}

// Get returns the value for key, or "" when unset. Backend read errors are
// logged and treated as unset so a flaky read never fails a translation unit.
func (s *Store) Get(ctx context.Context, key string) string {
	s.mu.RLock()
	if v, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return v
	}
	s.mu.RUnlock()

	value, ok, err := s.backend.GetSetting(ctx, key)
	if err != nil {
		log.Warn("Failed to read setting %s: %v", key, err)
		return ""
	}
	if !ok {
		return ""
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()
	return value
}

// GetMany resolves several keys in one backend round trip. Unset keys are
// absent from the result.
func (s *Store) GetMany(ctx context.Context, keys []string) map[string]string {
	ret := make(map[string]string, len(keys))
	missing := make([]string, 0, len(keys))

	s.mu.RLock()
	for _, key := range keys {
		if v, ok := s.cache[key]; ok {
			ret[key] = v
		} else {
			missing = append(missing, key)
		}
	}
	s.mu.RUnlock()

	if len(missing) == 0 {
		return ret
	}

	fetched, err := s.backend.GetSettings(ctx, missing)
	if err != nil {
		log.Warn("Failed to read settings %v: %v", missing, err)
		return ret
	}

	s.mu.Lock()
	for k, v := range fetched {
		s.cache[k] = v
		ret[k] = v
	}
	s.mu.Unlock()
	return ret
}

// Set persists a value, updates the cache and notifies subscribers.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.backend.SetSetting(ctx, key, value); err != nil {
		return fmt.Errorf("persist setting %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = value
	subs := append([]Subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn([]string{key})
	}
	return nil
}

// Subscribe registers a change listener. Listeners run synchronously on the
// goroutine calling Set and must not block.
func (s *Store) Subscribe(fn Subscriber) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// GetBool interprets a setting as a boolean, defaulting when unset.
func (s *Store) GetBool(ctx context.Context, key string, def bool) bool {
	v := s.Get(ctx, key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

// GetInt interprets a setting as an integer, defaulting when unset or invalid.
func (s *Store) GetInt(ctx context.Context, key string, def int) int {
	v := s.Get(ctx, key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

// GetFloat interprets a setting as a float, defaulting when unset or invalid.
func (s *Store) GetFloat(ctx context.Context, key string, def float64) float64 {
	v := s.Get(ctx, key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return parsed
}

// GetDurationMs interprets a setting as a millisecond count.
func (s *Store) GetDurationMs(ctx context.Context, key string, def time.Duration) time.Duration {
	v := s.Get(ctx, key)
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// GetList interprets a setting as a comma-separated list.
func (s *Store) GetList(ctx context.Context, key string) []string {
	v := s.Get(ctx, key)
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	ret := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			ret = append(ret, trimmed)
		}
	}
	return ret
}
