package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"analyzer/app/api"
	"analyzer/ingest"
	"analyzer/llm"
	"analyzer/memory"
	"analyzer/store"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
	BodyLimit:    50 * 1024 * 1024,
}

type Server struct {
	listenAddr string
	logger     *slog.Logger

	cancelJanitor context.CancelFunc
}

func NewServer(addr string) *Server {
	return &Server{
		listenAddr: addr,
		logger:     slog.Default(),
	}
}

func (s *Server) Stop() {
	if s.cancelJanitor != nil {
		s.cancelJanitor()
	}
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()
	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
	pool, err := store.NewPostgresStore(ctx, connStr)
	if err != nil {
		log.Fatal("error to connect to Postgres database", err)
		return
	}

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables", err)
		return
	}

	gen := newGenerationService()
	embedder := llm.NewOllamaEmbedder(os.Getenv("EMBED_API_URL"), os.Getenv("EMBED_MODEL"))
	extractor := ingest.NewExtractorClient(os.Getenv("EXTRACTOR_URL"))

	// one invoker so retry failures across operations share the breaker
	invoker := llm.NewInvoker(llm.DefaultMaxRetries, llm.DefaultBaseDelay)

	summarizer := llm.NewSummarizer(pool, gen, invoker, s.logger)
	mem := memory.NewConversationMemory(pool, summarizer,
		envInt("MEMORY_MAX_TOKENS", memory.DefaultMaxTokens),
		envInt("MEMORY_RECENT_MESSAGES", memory.DefaultRecentMessageCount))

	janitor := llm.NewCacheJanitor(pool,
		time.Duration(envInt("SUMMARY_MAX_AGE_DAYS", 7))*24*time.Hour,
		os.Getenv("SUMMARY_CLEANUP_ENABLED") != "false",
		s.logger)
	janitorCtx, cancel := context.WithCancel(ctx)
	s.cancelJanitor = cancel
	go janitor.Run(janitorCtx)

	var (
		app                 = fiber.New(config)
		checkHandler        = api.NewCheckHandler()
		documentHandler     = api.NewDocumentHandler(pool, extractor, embedder, s.logger,
			envFloat("PDF_CROP_TOP_PT", 0), envFloat("PDF_CROP_BOTTOM_PT", 0))
		chatHandler         = api.NewChatHandler(pool, mem, embedder, gen, invoker, s.logger)
		conversationHandler = api.NewConversationHandler(pool, s.logger)
		adminHandler        = api.NewAdminHandler(janitor)
		check               = app.Group("/check")
		apiv1               = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1.Post("/documents/analyze", documentHandler.HandleAnalyze)
	apiv1.Post("/chat", chatHandler.HandleChat)
	apiv1.Post("/conversations", conversationHandler.HandleCreate)
	apiv1.Get("/conversations", conversationHandler.HandleList)
	apiv1.Get("/conversations/:id", conversationHandler.HandleGet)
	apiv1.Get("/conversations/:id/messages", conversationHandler.HandleMessages)
	apiv1.Delete("/conversations/:id", conversationHandler.HandleDelete)
	apiv1.Post("/admin/cache/cleanup", adminHandler.HandleCacheCleanup)

	err = app.Listen(s.listenAddr)
	if err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return
	}
}

func newGenerationService() llm.GenerationService {
	if os.Getenv("LLM_PROVIDER") == "openai" {
		return llm.NewOpenAIClient(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_MODEL"))
	}
	return llm.NewOllamaClient(os.Getenv("OLLAMA_API_URL"), os.Getenv("OLLAMA_MODEL"))
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}
