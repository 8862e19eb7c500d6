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

const ollamaBaseURL = "http://localhost:11434"

// ollamaStrategy drives a local Ollama daemon through /api/generate. There is
// no authentication; the system prompt is carried in the request's system
// field.
type ollamaStrategy struct {
	settings Settings
	baseURL  string
	client   *http.Client
}

func newOllama(_ context.Context, settings Settings) (Translator, error) {
	if err := requireModel("ollama", settings); err != nil {
		return nil, err
	}

	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = ollamaBaseURL
	}
	return &ollamaStrategy{
		settings: settings,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: settings.Timeout},
	}, nil
}

func (s *ollamaStrategy) Name() string { return "ollama" }

func (s *ollamaStrategy) Translate(ctx context.Context, text, sourceLang, targetLang string, before, after []string) (string, error) {
	system := RenderPrompt(s.settings.PromptTemplate, sourceLang, targetLang)
	reply, err := s.generate(ctx, system, renderScalarPrompt(text, before, after))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (s *ollamaStrategy) TranslateBatch(ctx context.Context, units []BatchUnit, sourceLang, targetLang string) (map[int]string, error) {
	payload, err := encodeBatchUnits(units)
	if err != nil {
		return nil, err
	}
	system := RenderPrompt(s.settings.PromptTemplate, sourceLang, targetLang) + "\n\n" + batchInstruction

	reply, err := s.generate(ctx, system, payload)
	if err != nil {
		return nil, err
	}
	return parseBatchResponse("ollama", reply, requestedPositions(units))
}

type ollamaRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

func (s *ollamaStrategy) generate(ctx context.Context, system, prompt string) (string, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:  s.settings.Model,
		System: system,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	var reply string
	err = withRetry(ctx, "ollama", s.settings.Retry, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/generate", bytes.NewReader(body))
		if err != nil {
			return false, fmt.Errorf("ollama: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return false, fmt.Errorf("ollama: request failed: %w", err)
		}
		defer resp.Body.Close()

		responseBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, fmt.Errorf("ollama: read response: %w", err)
		}
		if transient(resp.StatusCode) {
			return true, &httpStatusError{status: resp.StatusCode}
		}
		if resp.StatusCode != http.StatusOK {
			return false, fmt.Errorf("ollama: API returned status %d: %s", resp.StatusCode, head(string(responseBody), 200))
		}

		var parsed struct {
			Response string `json:"response"`
		}
		if err := json.Unmarshal(responseBody, &parsed); err != nil {
			return false, &ContractError{Provider: "ollama", Detail: fmt.Sprintf("unparsable response (%d bytes)", len(responseBody))}
		}
		if parsed.Response == "" {
			return false, &ContractError{Provider: "ollama", Detail: "empty completion"}
		}
		reply = parsed.Response
		return false, nil
	})
	return reply, err
}

// GetModels lists the locally pulled models via /api/tags.
func (s *ollamaStrategy) GetModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: model discovery unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: model discovery returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("ollama: model discovery returned an unreadable response: %w", err)
	}

	models := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

var _ BatchTranslator = (*ollamaStrategy)(nil)
var _ ModelLister = (*ollamaStrategy)(nil)
