package provider

import "context"

const localAIBaseURL = "http://localhost:8080/v1"

func newLocalAI(_ context.Context, settings Settings) (Translator, error) {
	if err := requireModel("localai", settings); err != nil {
		return nil, err
	}
	return newChatStrategy("localai", settings, localAIBaseURL, bearerHeaders(settings.APIKey)), nil
}
