package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const myMemoryBaseURL = "https://api.mymemory.translated.net"

// myMemoryStrategy uses the free MyMemory API. No key is required; an
// optional contact email (stored in the api_key field) raises the daily
// quota.
type myMemoryStrategy struct {
	settings Settings
	baseURL  string
	client   *http.Client
}

func newMyMemory(_ context.Context, settings Settings) (Translator, error) {
	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = myMemoryBaseURL
	}
	return &myMemoryStrategy{
		settings: settings,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: settings.Timeout},
	}, nil
}

func (s *myMemoryStrategy) Name() string { return "mymemory" }

func (s *myMemoryStrategy) Translate(ctx context.Context, text, sourceLang, targetLang string, _, _ []string) (string, error) {
	query := url.Values{}
	query.Set("q", text)
	query.Set("langpair", fmt.Sprintf("%s|%s", sourceLang, targetLang))
	if s.settings.APIKey != "" {
		query.Set("de", s.settings.APIKey)
	}
	endpoint := fmt.Sprintf("%s/get?%s", s.baseURL, query.Encode())

	var reply string
	err := withRetry(ctx, "mymemory", s.settings.Retry, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return false, fmt.Errorf("mymemory: create request: %w", err)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return false, fmt.Errorf("mymemory: request failed: %w", err)
		}
		defer resp.Body.Close()

		responseBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, fmt.Errorf("mymemory: read response: %w", err)
		}
		if transient(resp.StatusCode) {
			return true, &httpStatusError{status: resp.StatusCode}
		}

		var parsed struct {
			ResponseData struct {
				TranslatedText string `json:"translatedText"`
			} `json:"responseData"`
			ResponseStatus  json.Number `json:"responseStatus"`
			ResponseDetails string      `json:"responseDetails"`
		}
		if err := json.Unmarshal(responseBody, &parsed); err != nil {
			return false, &ContractError{Provider: "mymemory", Detail: fmt.Sprintf("unparsable response (%d bytes)", len(responseBody))}
		}

		// MyMemory signals quota exhaustion inside a 200 body.
		status, _ := parsed.ResponseStatus.Int64()
		if status == http.StatusTooManyRequests {
			return true, &httpStatusError{status: int(status)}
		}
		if status != http.StatusOK {
			return false, fmt.Errorf("mymemory: API error: %s (%d)", parsed.ResponseDetails, status)
		}
		if parsed.ResponseData.TranslatedText == "" {
			return false, &ContractError{Provider: "mymemory", Detail: "empty translation"}
		}
		reply = parsed.ResponseData.TranslatedText
		return false, nil
	})
	return reply, err
}

var _ Translator = (*myMemoryStrategy)(nil)
