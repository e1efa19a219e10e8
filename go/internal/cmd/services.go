package main

import (
	"github.com/quizlive/quizlive/go/clients/groq_client"
	"github.com/quizlive/quizlive/go/internal/httpapi"
	"github.com/quizlive/quizlive/go/internal/pronounce"
	"github.com/quizlive/quizlive/go/internal/quiz"
	"github.com/quizlive/quizlive/go/internal/quiz/gateway"
	"github.com/quizlive/quizlive/go/internal/tts"
)

type Services struct {
	Engine            *quiz.Engine
	ConnectionManager *gateway.ConnectionManager
	WebSocket         *gateway.WebSocketHandler
	API               *httpapi.Handler
}

func setupServices(cfg *Config, groqAPIKey string, events quiz.EventPublisher) *Services {
	// Wire up dependency injection chain
	// Store/registry -> engine -> gateway; providers -> REST handler

	store := quiz.NewStore()
	registry := quiz.NewRegistry()

	connectionManager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	engine := quiz.NewEngine(store, registry, connectionManager, events, cfg.PerQuestion())
	connectionManager.SetSessionHandler(engine)

	groq := groq_client.NewGroqClient(groqAPIKey)
	pronounceService := pronounce.NewService(groq)
	ttsCache := tts.NewCache(cfg.TTS.CacheDir, cfg.TTS.Endpoint)

	return &Services{
		Engine:            engine,
		ConnectionManager: connectionManager,
		WebSocket:         gateway.NewWebSocketHandler(connectionManager),
		API:               httpapi.NewHandler(groq, engine, pronounceService, ttsCache),
	}
}
