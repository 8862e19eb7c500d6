package provider

import "context"

const deepSeekBaseURL = "https://api.deepseek.com/v1"

func newDeepSeek(_ context.Context, settings Settings) (Translator, error) {
	if settings.APIKey == "" {
		return nil, &ConfigError{Provider: "deepseek", Reason: "no API key configured"}
	}
	if settings.Model == "" {
		settings.Model = "deepseek-chat"
	}
	return newChatStrategy("deepseek", settings, deepSeekBaseURL, bearerHeaders(settings.APIKey)), nil
}
