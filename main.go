package main

import (
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/hongcheng-ai/sqlchat-console/pkg/assistant"
	"github.com/hongcheng-ai/sqlchat-console/pkg/auth"
	"github.com/hongcheng-ai/sqlchat-console/pkg/config"
	"github.com/hongcheng-ai/sqlchat-console/pkg/handlers"
	"github.com/hongcheng-ai/sqlchat-console/pkg/logging"
	"github.com/hongcheng-ai/sqlchat-console/pkg/middleware"
	"github.com/hongcheng-ai/sqlchat-console/pkg/services"
	"github.com/hongcheng-ai/sqlchat-console/ui"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("backend", cfg.Backend.BaseURL))

	fallbackQuestions, err := services.LoadFallbackQuestions(cfg.QuestionsFile)
	if err != nil {
		logger.Warn("Fallback questions unavailable",
			zap.String("file", cfg.QuestionsFile), zap.Error(err))
	}

	client := assistant.New(cfg.Backend.BaseURL, nil, logger)
	orchestrator := services.NewOrchestrator(client, fallbackQuestions, logger)
	training := services.NewTrainingService(client, logger)

	cookieSettings := auth.DeriveCookieSettings(cfg.BaseURL, cfg.CookieDomain)
	manager := auth.NewManager(
		cfg.Auth.SessionSecret,
		cfg.Auth.AdminUsername,
		cfg.Auth.AdminPassword,
		cfg.Auth.CookieMaxAgeDays,
		cookieSettings,
	)
	gate := auth.NewMiddleware(manager, logger)

	pages, err := handlers.NewPageHandler(ui.Assets(), cfg.Version, logger)
	if err != nil {
		logger.Fatal("Failed to parse page templates", zap.Error(err))
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(orchestrator, logger).RegisterRoutes(mux, gate)
	handlers.NewTableHandler(orchestrator, logger).RegisterRoutes(mux, gate)
	handlers.NewTrainingHandler(training, logger).RegisterRoutes(mux, gate)
	handlers.NewAuthHandler(manager, pages, logger).RegisterRoutes(mux, gate)
	pages.RegisterRoutes(mux, gate)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting sqlchat-console",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))

	if cfg.TLSCertPath != "" {
		err = http.ListenAndServeTLS(addr, cfg.TLSCertPath, cfg.TLSKeyPath, handler)
	} else {
		err = http.ListenAndServe(addr, handler)
	}
	if err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
