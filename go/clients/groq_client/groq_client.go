package groq_client

import (
	"github.com/quizlive/quizlive/go/clients"
)

// GroqClient talks to the Groq OpenAI-compatible API: chat completions for
// quiz generation and Whisper transcriptions for pronunciation scoring.
type GroqClient struct {
	*clients.BaseClient
}

func NewGroqClient(apiKey string) *GroqClient {
	client := &GroqClient{
		BaseClient: clients.NewBaseClient(BaseURL),
	}

	client.SetHeader(AuthorizationHeader, "Bearer "+apiKey)

	return client
}

// NewGroqClientWithBaseURL is used by tests to point the client at a stub
// server.
func NewGroqClientWithBaseURL(apiKey, baseURL string) *GroqClient {
	client := &GroqClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(AuthorizationHeader, "Bearer "+apiKey)

	return client
}
