package groq_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
)

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe submits a recording to the Whisper transcription endpoint and
// returns the recognized text. Any container format the service accepts can
// be passed through; filename is forwarded so the service can sniff it.
func (c *GroqClient) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("failed to copy audio: %w", err)
	}
	if err := mw.WriteField("model", WhisperModel); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	body, err := c.PostForm(ctx, TranscriptionsEndpoint, mw.FormDataContentType(), &buf)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}

	var resp transcriptionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return resp.Text, nil
}
