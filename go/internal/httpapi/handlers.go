package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/quizlive/quizlive/go/internal/models"
	"github.com/quizlive/quizlive/go/internal/pronounce"
	"github.com/quizlive/quizlive/go/internal/quiz"
	"github.com/quizlive/quizlive/go/internal/tts"
	"github.com/rs/zerolog/log"
)

const maxRecordingBytes = 10 << 20 // 10MB upload cap

// QuizProvider generates question sets; implemented by the Groq client.
type QuizProvider interface {
	GenerateQuiz(ctx context.Context, categories []string, n int) ([]models.Question, error)
}

// SessionService is what the REST surface needs from the quiz engine.
type SessionService interface {
	CreateSession(questions []models.Question) string
	Snapshot(sessionID string) (models.SessionSnapshot, error)
}

// Handler serves the REST endpoints that sit beside the websocket channel:
// session creation, the read-only scoreboard and the pronunciation game.
type Handler struct {
	provider  QuizProvider
	sessions  SessionService
	pronounce *pronounce.Service
	ttsCache  *tts.Cache
}

func NewHandler(provider QuizProvider, sessions SessionService, p *pronounce.Service, ttsCache *tts.Cache) *Handler {
	return &Handler{
		provider:  provider,
		sessions:  sessions,
		pronounce: p,
		ttsCache:  ttsCache,
	}
}

// RegisterRoutes registers the REST routes with an HTTP mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/quiz", h.handleCreateQuiz)
	mux.HandleFunc("/quiz/scoreboard", h.handleScoreboard)
	mux.HandleFunc("/pronounce", h.handlePronounce)
	mux.HandleFunc("/tts/", h.handleTTS)
}

type createQuizRequest struct {
	Cats []string `json:"cats"`
	N    int      `json:"n"`
}

type createQuizResponse struct {
	SessionID string `json:"sessionId"`
}

// handleCreateQuiz generates a question set via the provider and registers a
// fresh session. Provider failure surfaces as creation failure; no session
// is registered.
func (h *Handler) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.N < 1 || len(req.Cats) == 0 {
		writeError(w, http.StatusBadRequest, "cats and n are required")
		return
	}

	questions, err := h.provider.GenerateQuiz(r.Context(), req.Cats, req.N)
	if err != nil {
		log.Error().
			Err(err).
			Strs("cats", req.Cats).
			Int("n", req.N).
			Msg("quiz generation failed")
		writeError(w, http.StatusBadGateway, "quiz generation failed")
		return
	}
	// A session with zero questions could never be played; the engine
	// assumes a non-empty question list once running.
	if len(questions) == 0 {
		log.Error().
			Strs("cats", req.Cats).
			Int("n", req.N).
			Msg("provider returned no questions")
		writeError(w, http.StatusBadGateway, "quiz generation failed")
		return
	}

	sessionID := h.sessions.CreateSession(questions)
	writeJSON(w, http.StatusOK, createQuizResponse{SessionID: sessionID})
}

type scoreboardResponse struct {
	Status models.SessionStatus `json:"status"`
	Teams  map[string]int       `json:"teams"`
}

// handleScoreboard returns the current team scores of a session.
func (h *Handler) handleScoreboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	snap, err := h.sessions.Snapshot(sessionID)
	if err != nil {
		if errors.Is(err, quiz.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, scoreboardResponse{Status: snap.Status, Teams: snap.Teams})
}

// handlePronounce scores an uploaded recording against a target word.
func (h *Handler) handlePronounce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxRecordingBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	word := strings.TrimSpace(r.FormValue("word"))
	if word == "" {
		writeError(w, http.StatusBadRequest, "word is required")
		return
	}

	file, header, err := r.FormFile("wav")
	if err != nil {
		writeError(w, http.StatusBadRequest, "wav file is required")
		return
	}
	defer file.Close()

	result, err := h.pronounce.Evaluate(r.Context(), word, header.Filename, file)
	if err != nil {
		log.Error().Err(err).Str("word", word).Msg("pronunciation scoring failed")
		writeError(w, http.StatusBadGateway, "pronunciation scoring failed")
		return
	}
	result.TTS = "/tts/" + word

	writeJSON(w, http.StatusOK, result)
}

// handleTTS serves the cached reference-audio MP3 for a word.
func (h *Handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	word := strings.TrimPrefix(r.URL.Path, "/tts/")
	if word == "" || strings.Contains(word, "/") {
		writeError(w, http.StatusBadRequest, "word is required")
		return
	}

	path, err := h.ttsCache.Get(r.Context(), word)
	if err != nil {
		log.Error().Err(err).Str("word", word).Msg("tts synthesis failed")
		writeError(w, http.StatusBadGateway, "tts synthesis failed")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", word+".mp3"))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
