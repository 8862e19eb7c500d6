package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	deepLBaseURL     = "https://api.deepl.com/v2"
	deepLFreeBaseURL = "https://api-free.deepl.com/v2"
)

// deepLStrategy talks to the DeepL REST API. Free-tier keys carry a ":fx"
// suffix and live on a separate host. Context lines ride in DeepL's own
// context field instead of a prompt.
type deepLStrategy struct {
	settings Settings
	baseURL  string
	client   *http.Client
}

func newDeepL(_ context.Context, settings Settings) (Translator, error) {
	if settings.APIKey == "" {
		return nil, &ConfigError{Provider: "deepl", Reason: "no API key configured"}
	}

	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = deepLBaseURL
		if strings.HasSuffix(settings.APIKey, ":fx") {
			baseURL = deepLFreeBaseURL
		}
	}
	return &deepLStrategy{
		settings: settings,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: settings.Timeout},
	}, nil
}

func (s *deepLStrategy) Name() string { return "deepl" }

type deepLRequest struct {
	Text       []string `json:"text"`
	SourceLang string   `json:"source_lang,omitempty"`
	TargetLang string   `json:"target_lang"`
	Context    string   `json:"context,omitempty"`
}

type deepLResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
	Message string `json:"message"`
}

func (s *deepLStrategy) Translate(ctx context.Context, text, sourceLang, targetLang string, before, after []string) (string, error) {
	request := deepLRequest{
		Text:       []string{text},
		SourceLang: strings.ToUpper(sourceLang),
		TargetLang: strings.ToUpper(targetLang),
	}
	if len(before) > 0 || len(after) > 0 {
		request.Context = strings.Join(append(append([]string{}, before...), after...), "\n")
	}
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("deepl: marshal request: %w", err)
	}

	var reply string
	err = withRetry(ctx, "deepl", s.settings.Retry, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/translate", bytes.NewReader(body))
		if err != nil {
			return false, fmt.Errorf("deepl: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "DeepL-Auth-Key "+s.settings.APIKey)

		resp, err := s.client.Do(req)
		if err != nil {
			return false, fmt.Errorf("deepl: request failed: %w", err)
		}
		defer resp.Body.Close()

		responseBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, fmt.Errorf("deepl: read response: %w", err)
		}
		if transient(resp.StatusCode) {
			return true, &httpStatusError{status: resp.StatusCode}
		}
		if resp.StatusCode != http.StatusOK {
			return false, fmt.Errorf("deepl: API returned status %d: %s", resp.StatusCode, head(string(responseBody), 200))
		}

		var parsed deepLResponse
		if err := json.Unmarshal(responseBody, &parsed); err != nil {
			return false, &ContractError{Provider: "deepl", Detail: fmt.Sprintf("unparsable response (%d bytes)", len(responseBody))}
		}
		if len(parsed.Translations) == 0 {
			return false, &ContractError{Provider: "deepl", Detail: "response contained no translations"}
		}
		reply = parsed.Translations[0].Text
		return false, nil
	})
	return reply, err
}

var _ Translator = (*deepLStrategy)(nil)
