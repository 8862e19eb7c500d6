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

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiStrategy speaks the Gemini generateContent API. The API key rides in
// a query parameter and the system prompt in systemInstruction.
type geminiStrategy struct {
	settings Settings
	baseURL  string
	client   *http.Client
}

func newGemini(_ context.Context, settings Settings) (Translator, error) {
	if settings.APIKey == "" {
		return nil, &ConfigError{Provider: "gemini", Reason: "no API key configured"}
	}
	if settings.Model == "" {
		settings.Model = "gemini-2.0-flash"
	}

	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &geminiStrategy{
		settings: settings,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: settings.Timeout},
	}, nil
}

func (s *geminiStrategy) Name() string { return "gemini" }

func (s *geminiStrategy) Translate(ctx context.Context, text, sourceLang, targetLang string, before, after []string) (string, error) {
	system := RenderPrompt(s.settings.PromptTemplate, sourceLang, targetLang)
	reply, err := s.generate(ctx, system, renderScalarPrompt(text, before, after))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (s *geminiStrategy) TranslateBatch(ctx context.Context, units []BatchUnit, sourceLang, targetLang string) (map[int]string, error) {
	payload, err := encodeBatchUnits(units)
	if err != nil {
		return nil, err
	}
	system := RenderPrompt(s.settings.PromptTemplate, sourceLang, targetLang) + "\n\n" + batchInstruction

	reply, err := s.generate(ctx, system, payload)
	if err != nil {
		return nil, err
	}
	return parseBatchResponse("gemini", reply, requestedPositions(units))
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *geminiStrategy) generate(ctx context.Context, system, user string) (string, error) {
	request := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: user}}}},
	}
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", s.baseURL, s.settings.Model, s.settings.APIKey)

	var reply string
	err = withRetry(ctx, "gemini", s.settings.Retry, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return false, fmt.Errorf("gemini: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return false, fmt.Errorf("gemini: request failed: %w", err)
		}
		defer resp.Body.Close()

		responseBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, fmt.Errorf("gemini: read response: %w", err)
		}
		if transient(resp.StatusCode) {
			return true, &httpStatusError{status: resp.StatusCode}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return false, fmt.Errorf("gemini: API returned status %d: %s", resp.StatusCode, head(string(responseBody), 200))
		}

		var parsed geminiResponse
		if err := json.Unmarshal(responseBody, &parsed); err != nil {
			return false, &ContractError{Provider: "gemini", Detail: fmt.Sprintf("unparsable response (%d bytes)", len(responseBody))}
		}
		if parsed.Error != nil && parsed.Error.Message != "" {
			return false, fmt.Errorf("gemini: API error: %s", parsed.Error.Message)
		}
		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return false, &ContractError{Provider: "gemini", Detail: "response contained no candidates"}
		}
		reply = parsed.Candidates[0].Content.Parts[0].Text
		return false, nil
	})
	return reply, err
}

func (s *geminiStrategy) GetModels(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/models?key=%s", s.baseURL, s.settings.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: model discovery unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini: model discovery returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("gemini: model discovery returned an unreadable response: %w", err)
	}

	models := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		models = append(models, strings.TrimPrefix(m.Name, "models/"))
	}
	return models, nil
}

var _ BatchTranslator = (*geminiStrategy)(nil)
var _ ModelLister = (*geminiStrategy)(nil)
