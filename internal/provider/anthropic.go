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
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// anthropicStrategy speaks the Anthropic messages API. The system prompt
// travels in its own field rather than as a message.
type anthropicStrategy struct {
	settings Settings
	baseURL  string
	client   *http.Client
}

func newAnthropic(_ context.Context, settings Settings) (Translator, error) {
	if settings.APIKey == "" {
		return nil, &ConfigError{Provider: "anthropic", Reason: "no API key configured"}
	}
	if err := requireModel("anthropic", settings); err != nil {
		return nil, err
	}

	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &anthropicStrategy{
		settings: settings,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: settings.Timeout},
	}, nil
}

func (s *anthropicStrategy) Name() string { return "anthropic" }

func (s *anthropicStrategy) Translate(ctx context.Context, text, sourceLang, targetLang string, before, after []string) (string, error) {
	system := RenderPrompt(s.settings.PromptTemplate, sourceLang, targetLang)
	reply, err := s.complete(ctx, system, renderScalarPrompt(text, before, after))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (s *anthropicStrategy) TranslateBatch(ctx context.Context, units []BatchUnit, sourceLang, targetLang string) (map[int]string, error) {
	payload, err := encodeBatchUnits(units)
	if err != nil {
		return nil, err
	}
	system := RenderPrompt(s.settings.PromptTemplate, sourceLang, targetLang) + "\n\n" + batchInstruction

	reply, err := s.complete(ctx, system, payload)
	if err != nil {
		return nil, err
	}
	return parseBatchResponse("anthropic", reply, requestedPositions(units))
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *anthropicStrategy) complete(ctx context.Context, system, user string) (string, error) {
	request := anthropicRequest{
		Model:     s.settings.Model,
		MaxTokens: 4096,
		System:    system,
		Messages:  []chatMessage{{Role: "user", Content: user}},
	}
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("anthropic: marshal request: %w", err)
	}

	var reply string
	err = withRetry(ctx, "anthropic", s.settings.Retry, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(body))
		if err != nil {
			return false, fmt.Errorf("anthropic: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", s.settings.APIKey)
		req.Header.Set("anthropic-version", anthropicVersion)

		resp, err := s.client.Do(req)
		if err != nil {
			return false, fmt.Errorf("anthropic: request failed: %w", err)
		}
		defer resp.Body.Close()

		responseBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, fmt.Errorf("anthropic: read response: %w", err)
		}
		if transient(resp.StatusCode) {
			return true, &httpStatusError{status: resp.StatusCode}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return false, fmt.Errorf("anthropic: API returned status %d: %s", resp.StatusCode, head(string(responseBody), 200))
		}

		var parsed anthropicResponse
		if err := json.Unmarshal(responseBody, &parsed); err != nil {
			return false, &ContractError{Provider: "anthropic", Detail: fmt.Sprintf("unparsable response (%d bytes)", len(responseBody))}
		}
		if parsed.Error != nil && parsed.Error.Message != "" {
			return false, fmt.Errorf("anthropic: API error: %s", parsed.Error.Message)
		}
		for _, block := range parsed.Content {
			if block.Type == "text" && block.Text != "" {
				reply = block.Text
				return false, nil
			}
		}
		return false, &ContractError{Provider: "anthropic", Detail: "response contained no text block"}
	})
	return reply, err
}

func (s *anthropicStrategy) GetModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	req.Header.Set("x-api-key", s.settings.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: model discovery unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic: model discovery returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("anthropic: model discovery returned an unreadable response: %w", err)
	}

	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

var _ BatchTranslator = (*anthropicStrategy)(nil)
var _ ModelLister = (*anthropicStrategy)(nil)
