package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/p-n-ai/recall/internal/ai"
	"github.com/p-n-ai/recall/internal/chat"
	"github.com/p-n-ai/recall/internal/deck"
	"github.com/p-n-ai/recall/internal/generator"
	"github.com/p-n-ai/recall/internal/platform/cache"
	"github.com/p-n-ai/recall/internal/platform/config"
	"github.com/p-n-ai/recall/internal/platform/database"
	"github.com/p-n-ai/recall/internal/srs"
	"github.com/p-n-ai/recall/internal/study"
)

func main() {
	// A local .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var checks []readinessCheck

	var events study.EventLogger = study.NopEventLogger{}
	if cfg.Database.URL != "" {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		events = study.NewPostgresEventLogger(db.Pool)
		checks = append(checks, readinessCheck{name: "database", check: db.HealthCheck})
	}

	var store *cache.Cache
	if cfg.Cache.URL != "" {
		store, err = cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			// The cache only saves generation cost; run without it.
			slog.Warn("cache unavailable, continuing without it", "error", err)
			store = nil
		} else {
			defer func() { _ = store.Close() }()
			checks = append(checks, readinessCheck{name: "cache", check: store.HealthCheck})
		}
	}

	gen := buildGenerator(cfg, store)
	if gen == nil {
		slog.Warn("no generator configured, only decks can be studied")
	}

	var decks study.DeckSource
	if cfg.Study.DecksPath != "" {
		loader, err := deck.NewLoader(cfg.Study.DecksPath)
		if err != nil {
			slog.Error("failed to load decks", "path", cfg.Study.DecksPath, "error", err)
			os.Exit(1)
		}
		slog.Info("decks loaded", "count", len(loader.All()))
		decks = loader
	}

	qt, _ := srs.ParseQuestionType(cfg.Study.DefaultQuestionType)
	engine := study.NewEngine(study.EngineConfig{
		Generator:           gen,
		Decks:               decks,
		Events:              events,
		DefaultQuestionType: qt,
		GenerationTimeout:   cfg.Generation.Timeout,
	})

	gateway := chat.NewGateway()
	if cfg.Telegram.BotToken != "" {
		tg, err := chat.NewTelegramChannel(cfg.Telegram.BotToken)
		if err != nil {
			slog.Error("failed to create telegram channel", "error", err)
			os.Exit(1)
		}
		gateway.Register("telegram", tg)
	}
	var ws http.Handler
	if cfg.WebSocket.Enabled {
		wsChannel := chat.NewWebSocketChannel(chat.WithOriginPatterns(cfg.WebSocket.OriginPatterns...))
		gateway.Register("websocket", wsChannel)
		ws = wsChannel
	}

	if err := gateway.StartAll(ctx, newMessageHandler(engine, gateway)); err != nil {
		slog.Error("failed to start channels", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     newMux(ws, checks...),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "channels", gateway.Len())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	if err := gateway.StopAll(); err != nil {
		slog.Error("failed to stop channels", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newLogger builds the process logger from RECALL_LOG_LEVEL and RECALL_LOG_FORMAT.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// buildGenerator picks the external service when configured, otherwise the
// AI providers. Results are cached when a cache is available.
func buildGenerator(cfg *config.Config, store *cache.Cache) generator.Generator {
	var gen generator.Generator
	switch {
	case cfg.Generation.ServiceURL != "":
		gen = generator.NewServiceClient(cfg.Generation.ServiceURL)
		slog.Info("using flashcard service", "url", cfg.Generation.ServiceURL)
	case cfg.HasAIProvider():
		router := buildRouter(cfg)
		opts := []generator.AIOption{
			generator.WithMaxChunkChars(cfg.Generation.MaxChunkChars),
			generator.WithConcurrency(cfg.Generation.Concurrency),
			generator.WithBudget(ai.NewInMemoryBudget(cfg.Generation.TokenBudget)),
		}
		if cfg.AI.OpenAI.Model != "" {
			opts = append(opts, generator.WithModel(cfg.AI.OpenAI.Model))
		}
		gen = generator.NewAIGenerator(router, opts...)
	default:
		return nil
	}

	if store != nil {
		gen = generator.NewCachingGenerator(gen, store, cfg.Cache.TTL)
	}
	return gen
}

// buildRouter registers providers in fallback order.
func buildRouter(cfg *config.Config) *ai.Router {
	router := ai.NewRouter(ai.WithRequestsPerMinute(cfg.AI.RequestsPerMinute))
	if cfg.AI.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.AI.OpenAI.APIKey))
	}
	if cfg.AI.DeepSeek.APIKey != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(cfg.AI.DeepSeek.APIKey))
	}
	if cfg.AI.OpenRouter.APIKey != "" {
		router.Register("openrouter", ai.NewOpenRouterProvider(cfg.AI.OpenRouter.APIKey))
	}
	if cfg.AI.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.AI.Ollama.URL))
	}
	return router
}

// newMessageHandler answers every inbound message on the channel it came from.
func newMessageHandler(engine *study.Engine, gateway *chat.Gateway) func(chat.InboundMessage) {
	return func(msg chat.InboundMessage) {
		ctx := context.Background()
		if msg.Document != nil {
			if err := gateway.SendTyping(ctx, msg.Channel, msg.UserID); err != nil {
				slog.Debug("typing indicator failed", "channel", msg.Channel, "error", err)
			}
		}

		reply, err := engine.ProcessMessage(ctx, msg)
		if err != nil {
			slog.Error("failed to process message", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
			reply = study.Reply{Text: "Sorry, something went wrong on my side. Please try again in a moment."}
		}
		if reply.Text == "" {
			return
		}

		if err := gateway.Send(ctx, chat.OutboundMessage{
			Channel: msg.Channel,
			UserID:  msg.UserID,
			Text:    reply.Text,
			Options: reply.Options,
		}); err != nil {
			slog.Error("failed to send reply", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
		}
	}
}

type readinessCheck struct {
	name  string
	check func(context.Context) error
}

// newMux creates the HTTP router with health check endpoints and, when ws
// is non-nil, the WebSocket endpoint.
func newMux(ws http.Handler, checks ...readinessCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	if ws != nil {
		mux.Handle("GET /ws", ws)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks []readinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				slog.Warn("readiness check failed", "check", c.name, "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "failed": c.name})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}
