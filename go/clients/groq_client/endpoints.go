package groq_client

const (
	// Base URL
	BaseURL = "https://api.groq.com"

	// API Endpoints
	ChatCompletionsEndpoint = "/openai/v1/chat/completions"
	TranscriptionsEndpoint  = "/openai/v1/audio/transcriptions"

	// Models
	QuizModel    = "llama3-8b-8192"
	WhisperModel = "whisper-large-v3"

	// Headers
	AuthorizationHeader = "Authorization"
)
