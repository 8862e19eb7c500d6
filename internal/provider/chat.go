package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// chatStrategy is the shared base for every OpenAI-compatible chat-completion
// backend (OpenAI, OpenRouter, DeepSeek, LM Studio, LocalAI). Per-backend
// variation is limited to defaults and headers supplied at construction.
type chatStrategy struct {
	name     string
	settings Settings
	baseURL  string
	headers  map[string]string
	client   *http.Client
}

func newChatStrategy(name string, settings Settings, defaultBaseURL string, headers map[string]string) *chatStrategy {
	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &chatStrategy{
		name:     name,
		settings: settings,
		baseURL:  strings.TrimRight(baseURL, "/"),
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *chatStrategy) Name() string { return s.name }

func (s *chatStrategy) Translate(ctx context.Context, text, sourceLang, targetLang string, before, after []string) (string, error) {
	system := RenderPrompt(s.settings.PromptTemplate, sourceLang, targetLang)
	user := renderScalarPrompt(text, before, after)

	reply, err := s.complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (s *chatStrategy) TranslateBatch(ctx context.Context, units []BatchUnit, sourceLang, targetLang string) (map[int]string, error) {
	payload, err := encodeBatchUnits(units)
	if err != nil {
		return nil, err
	}
	system := RenderPrompt(s.settings.PromptTemplate, sourceLang, targetLang) + "\n\n" + batchInstruction

	reply, err := s.complete(ctx, system, payload)
	if err != nil {
		return nil, err
	}
	return parseBatchResponse(s.name, reply, requestedPositions(units))
}

// complete runs one chat completion, retrying on rate-limit class responses.
func (s *chatStrategy) complete(ctx context.Context, system, user string) (string, error) {
	request := chatRequest{
		Model: s.settings.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.3,
	}

	var reply string
	err := withRetry(ctx, s.name, s.settings.Retry, func() (bool, error) {
		var err error
		reply, err = s.completeOnce(ctx, request)
		if err != nil {
			return isRateLimited(err), err
		}
		return false, nil
	})
	return reply, err
}

func (s *chatStrategy) completeOnce(ctx context.Context, request chatRequest) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("%s: marshal request: %w", s.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", s.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: request failed: %w", s.name, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: read response: %w", s.name, err)
	}
	if transient(resp.StatusCode) {
		return "", &httpStatusError{status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s: API returned status %d: %s", s.name, resp.StatusCode, head(string(responseBody), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return "", &ContractError{Provider: s.name, Detail: fmt.Sprintf("unparsable completion (%d bytes)", len(responseBody))}
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", fmt.Errorf("%s: API error: %s", s.name, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", &ContractError{Provider: s.name, Detail: "completion contained no choices"}
	}
	return parsed.Choices[0].Message.Content, nil
}

// GetModels lists the backend's model identifiers via the /models endpoint.
func (s *chatStrategy) GetModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", s.name, err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: model discovery unavailable: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: model discovery returned status %d", s.name, resp.StatusCode)
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%s: model discovery returned an unreadable response: %w", s.name, err)
	}

	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// httpStatusError marks a response retried by the backoff loop.
type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("API returned status %d", e.status)
}

// transient reports whether a status is in the rate-limit/overload class.
// Everything else raises immediately without retry.
func transient(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

func isRateLimited(err error) bool {
	var httpErr *httpStatusError
	return errors.As(err, &httpErr) && transient(httpErr.status)
}

// bearerHeaders builds the common Authorization header map.
func bearerHeaders(apiKey string) map[string]string {
	if apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

// requireModel is shared validation for chat backends, which cannot guess a
// model name.
func requireModel(name string, settings Settings) error {
	if settings.Model == "" {
		return &ConfigError{Provider: name, Reason: "no model configured"}
	}
	return nil
}

var _ BatchTranslator = (*chatStrategy)(nil)
var _ ModelLister = (*chatStrategy)(nil)
