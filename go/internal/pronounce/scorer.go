package pronounce

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"github.com/rs/zerolog/log"
)

// PassThreshold is the minimum phonetic score counted as a pass.
const PassThreshold = 0.7

// Transcriber converts a recording into text. Implemented by the Groq
// Whisper client.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Result is the outcome of scoring one recording against a target word.
type Result struct {
	Target     string  `json:"target"`
	Transcript string  `json:"transcript"`
	Score      float64 `json:"score"`
	Pass       bool    `json:"pass"`
	TTS        string  `json:"tts,omitempty"`
}

// Service scores pronunciation attempts: transcribe the recording, then
// compare the phonetic encodings of target and transcript.
type Service struct {
	transcriber Transcriber
}

func NewService(t Transcriber) *Service {
	return &Service{transcriber: t}
}

// Evaluate transcribes the recording and scores it against word.
func (s *Service) Evaluate(ctx context.Context, word, filename string, audio io.Reader) (Result, error) {
	transcript, err := s.transcriber.Transcribe(ctx, filename, audio)
	if err != nil {
		return Result{}, fmt.Errorf("failed to transcribe recording: %w", err)
	}
	transcript = strings.ToLower(strings.TrimSpace(transcript))

	score := phoneticScore(word, transcript)

	log.Debug().
		Str("target", word).
		Str("transcript", transcript).
		Float64("score", score).
		Msg("scored pronunciation attempt")

	return Result{
		Target:     word,
		Transcript: transcript,
		Score:      round3(score),
		Pass:       score >= PassThreshold,
	}, nil
}

// phoneticScore is 1 minus the normalized edit distance between the
// Metaphone encodings of the two strings, so homophones score 1 regardless
// of spelling.
func phoneticScore(target, transcript string) float64 {
	targetCode, _ := matchr.DoubleMetaphone(letters(target))
	transcriptCode, _ := matchr.DoubleMetaphone(letters(transcript))

	longest := len(targetCode)
	if len(transcriptCode) > longest {
		longest = len(transcriptCode)
	}
	if longest == 0 {
		return 1
	}

	dist := matchr.Levenshtein(targetCode, transcriptCode)
	return 1 - float64(dist)/float64(longest)
}

// letters normalizes a string for phonetic encoding: lowercase, letters and
// spaces only. Whisper transcripts carry punctuation that would otherwise
// skew the encoding.
func letters(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
