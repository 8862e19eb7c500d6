package provider

import (
	"context"
	"fmt"
	"strings"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// googleStrategy wraps the Google Cloud Translation SDK. Scalar only; the
// NMT API has no prompt, so context lines are ignored.
type googleStrategy struct {
	settings Settings
	client   *translate.Client
}

func newGoogle(ctx context.Context, settings Settings) (Translator, error) {
	opts := []option.ClientOption{}
	switch {
	case settings.Credentials != "":
		opts = append(opts, option.WithCredentialsFile(settings.Credentials))
	case settings.APIKey != "":
		opts = append(opts, option.WithAPIKey(settings.APIKey))
	default:
		return nil, &ConfigError{Provider: "google", Reason: "no credentials file or API key configured"}
	}

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, &ConfigError{Provider: "google", Reason: fmt.Sprintf("create client: %v", err)}
	}
	return &googleStrategy{settings: settings, client: client}, nil
}

func (s *googleStrategy) Name() string { return "google" }

func (s *googleStrategy) Translate(ctx context.Context, text, sourceLang, targetLang string, _, _ []string) (string, error) {
	target, err := language.Parse(targetLang)
	if err != nil {
		return "", &ConfigError{Provider: "google", Reason: fmt.Sprintf("invalid target language %q", targetLang)}
	}

	var translateOpts *translate.Options
	if source, err := language.Parse(sourceLang); err == nil {
		translateOpts = &translate.Options{Source: source, Format: translate.Text}
	}

	var reply string
	err = withRetry(ctx, "google", s.settings.Retry, func() (bool, error) {
		translations, err := s.client.Translate(ctx, []string{text}, target, translateOpts)
		if err != nil {
			return isGoogleRateLimit(err), fmt.Errorf("google: translation failed: %w", err)
		}
		if len(translations) == 0 {
			return false, &ContractError{Provider: "google", Detail: "no translation returned"}
		}
		reply = translations[0].Text
		return false, nil
	})
	return reply, err
}

// Close releases the underlying gRPC connection.
func (s *googleStrategy) Close() error {
	return s.client.Close()
}

func isGoogleRateLimit(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "rateLimitExceeded") || strings.Contains(msg, "quotaExceeded")
}

var _ Translator = (*googleStrategy)(nil)
