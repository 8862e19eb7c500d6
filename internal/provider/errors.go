package provider

import (
	"errors"
	"fmt"
)

// ErrUnknownProvider is returned by the registry for a backend name it has no
// factory for. A request hitting this fails permanently; it is never retried.
var ErrUnknownProvider = errors.New("unknown translation backend")

// ConfigError reports a backend that cannot operate with its current
// settings, such as a missing API key or model. Permanent, never retried.
type ConfigError struct {
	Provider string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: configuration error: %s", e.Provider, e.Reason)
}

// RateLimitError reports that the backend kept rate-limiting through the full
// retry budget.
type RateLimitError struct {
	Provider string
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry limit reached after %d attempts", e.Provider, e.Attempts)
}

// ContractError reports a response the backend was not supposed to send:
// malformed batch JSON, an empty completion, a missing field. The payload
// itself is not embedded; Detail carries its size and shape for diagnosis.
type ContractError struct {
	Provider string
	Detail   string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: upstream contract violation: %s", e.Provider, e.Detail)
}

// IsTranslationError reports whether err is a recognized translation-specific
// failure, as opposed to a generic one. The worker uses this to distinguish
// failure classes in logs; both end up as a failed request.
func IsTranslationError(err error) bool {
	var rateLimit *RateLimitError
	var contract *ContractError
	var config *ConfigError
	return errors.As(err, &rateLimit) || errors.As(err, &contract) || errors.As(err, &config)
}
