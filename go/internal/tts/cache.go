package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultEndpoint synthesizes single words via the public translate TTS
// service.
const DefaultEndpoint = "https://translate.google.com/translate_tts"

// Cache fetches reference-audio MP3s on first request and keeps them on
// disk, keyed by lowercased word. Entries never expire; clients get a
// one-day Cache-Control from the HTTP handler.
type Cache struct {
	dir      string
	endpoint string
	client   *http.Client
}

func NewCache(dir, endpoint string) *Cache {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Cache{
		dir:      dir,
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Get returns the path of the cached MP3 for word, synthesizing and caching
// it first when absent.
func (c *Cache) Get(ctx context.Context, word string) (string, error) {
	path := filepath.Join(c.dir, strings.ToLower(word)+".mp3")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}

	audio, err := c.fetch(ctx, word)
	if err != nil {
		return "", err
	}

	// Write to a temp file first so a crashed fetch never leaves a partial
	// entry behind.
	tmp, err := os.CreateTemp(c.dir, "tts-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to store audio: %w", err)
	}

	log.Info().
		Str("word", word).
		Str("path", path).
		Int("bytes", len(audio)).
		Msg("cached reference audio")

	return path, nil
}

func (c *Cache) fetch(ctx context.Context, word string) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("tl", "en")
	q.Set("client", "tw-ob")
	q.Set("q", word)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch synthesized audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts endpoint returned status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	return audio, nil
}
