package provider

import "context"

// LM Studio serves an OpenAI-compatible API on localhost; no key is needed
// and the loaded model answers regardless of the model field.
const lmStudioBaseURL = "http://localhost:1234/v1"

func newLMStudio(_ context.Context, settings Settings) (Translator, error) {
	if settings.Model == "" {
		settings.Model = "local-model"
	}
	return newChatStrategy("lmstudio", settings, lmStudioBaseURL, bearerHeaders(settings.APIKey)), nil
}
