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

const libreTranslateBaseURL = "http://localhost:5000"

// libreTranslateStrategy drives a LibreTranslate instance. The API key is
// optional for self-hosted deployments.
type libreTranslateStrategy struct {
	settings Settings
	baseURL  string
	client   *http.Client
}

func newLibreTranslate(_ context.Context, settings Settings) (Translator, error) {
	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = libreTranslateBaseURL
	}
	return &libreTranslateStrategy{
		settings: settings,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: settings.Timeout},
	}, nil
}

func (s *libreTranslateStrategy) Name() string { return "libretranslate" }

func (s *libreTranslateStrategy) Translate(ctx context.Context, text, sourceLang, targetLang string, _, _ []string) (string, error) {
	request := map[string]string{
		"q":      text,
		"source": sourceLang,
		"target": targetLang,
		"format": "text",
	}
	if s.settings.APIKey != "" {
		request["api_key"] = s.settings.APIKey
	}
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("libretranslate: marshal request: %w", err)
	}

	var reply string
	err = withRetry(ctx, "libretranslate", s.settings.Retry, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/translate", bytes.NewReader(body))
		if err != nil {
			return false, fmt.Errorf("libretranslate: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return false, fmt.Errorf("libretranslate: request failed: %w", err)
		}
		defer resp.Body.Close()

		responseBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, fmt.Errorf("libretranslate: read response: %w", err)
		}
		if transient(resp.StatusCode) {
			return true, &httpStatusError{status: resp.StatusCode}
		}
		if resp.StatusCode != http.StatusOK {
			return false, fmt.Errorf("libretranslate: API returned status %d: %s", resp.StatusCode, head(string(responseBody), 200))
		}

		var parsed struct {
			TranslatedText string `json:"translatedText"`
			Error          string `json:"error"`
		}
		if err := json.Unmarshal(responseBody, &parsed); err != nil {
			return false, &ContractError{Provider: "libretranslate", Detail: fmt.Sprintf("unparsable response (%d bytes)", len(responseBody))}
		}
		if parsed.Error != "" {
			return false, fmt.Errorf("libretranslate: API error: %s", parsed.Error)
		}
		if parsed.TranslatedText == "" {
			return false, &ContractError{Provider: "libretranslate", Detail: "empty translation"}
		}
		reply = parsed.TranslatedText
		return false, nil
	})
	return reply, err
}

// GetModels reports the instance's language pairs as pseudo-models.
func (s *libreTranslateStrategy) GetModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/languages", nil)
	if err != nil {
		return nil, fmt.Errorf("libretranslate: create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("libretranslate: model discovery unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("libretranslate: model discovery returned status %d", resp.StatusCode)
	}

	var parsed []struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("libretranslate: model discovery returned an unreadable response: %w", err)
	}

	langs := make([]string, 0, len(parsed))
	for _, l := range parsed {
		langs = append(langs, l.Code)
	}
	return langs, nil
}

var _ Translator = (*libreTranslateStrategy)(nil)
var _ ModelLister = (*libreTranslateStrategy)(nil)
