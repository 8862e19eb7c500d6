package provider

import "context"

const openRouterBaseURL = "https://openrouter.ai/api/v1"

func newOpenRouter(_ context.Context, settings Settings) (Translator, error) {
	if settings.APIKey == "" {
		return nil, &ConfigError{Provider: "openrouter", Reason: "no API key configured"}
	}
	if err := requireModel("openrouter", settings); err != nil {
		return nil, err
	}

	headers := bearerHeaders(settings.APIKey)
	headers["X-Title"] = "sublingo"
	return newChatStrategy("openrouter", settings, openRouterBaseURL, headers), nil
}
