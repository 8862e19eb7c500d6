package provider

import "context"

const openAIBaseURL = "https://api.openai.com/v1"

func newOpenAI(_ context.Context, settings Settings) (Translator, error) {
	if settings.APIKey == "" {
		return nil, &ConfigError{Provider: "openai", Reason: "no API key configured"}
	}
	if err := requireModel("openai", settings); err != nil {
		return nil, err
	}
	return newChatStrategy("openai", settings, openAIBaseURL, bearerHeaders(settings.APIKey)), nil
}
