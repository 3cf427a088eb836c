package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/api/handlers"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/archive"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/cache"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/llm"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/matcher"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/metrics"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/middleware/ratelimit"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/slack"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/socket"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/internal/storage/sqlite"
	"github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/config"
	appLogger "github.com/VibeMonkeys/mcp-monkeys-sub000/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting channel Q&A bot")

	if cfg.Slack.BotToken == "" {
		appLogger.Fatal("Slack bot token is required (QABOT_SLACK_BOTTOKEN)")
	}

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var store cache.Store
	if cfg.QABot.Cache.Backend == "redis" {
		redisStore, err := cache.NewRedisStore(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		store = cache.NewMemoryStore()
	}

	slackClient := slack.NewClient(cfg.Slack.BotToken, cfg.Slack.AppToken)

	qaArchive := archive.New(slackClient, store, archive.Config{
		PageSize:   cfg.QABot.Crawl.PageSize,
		PageDelay:  time.Duration(cfg.QABot.Crawl.PageDelayMs) * time.Millisecond,
		CacheTTL:   time.Duration(cfg.QABot.Cache.TTLSeconds) * time.Second,
		MaxHistory: cfg.QABot.Crawl.MaxHistory,
	})

	var reformatter matcher.Reformatter
	if cfg.LLM.ReformatEnabled {
		if cfg.LLM.APIKey == "" {
			appLogger.Warn("LLM reformatting enabled without an API key, skipping")
		} else {
			reformatter = llm.NewReformatter(llm.Config{
				APIKey:      cfg.LLM.APIKey,
				Model:       cfg.LLM.Model,
				Temperature: cfg.LLM.Temperature,
				MaxTokens:   cfg.LLM.MaxTokens,
				Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
			})
		}
	}

	qaMatcher := matcher.New(qaArchive, cfg.QABot.Matching.SimilarityThreshold, reformatter, sqliteClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Slack.SocketMode.Enabled {
		if cfg.Slack.AppToken == "" {
			appLogger.Fatal("Slack app token is required for socket mode (QABOT_SLACK_APPTOKEN)")
		}

		conn := socket.NewConn(slackClient, time.Duration(cfg.Slack.SocketMode.ReconnectDelaySec)*time.Second)
		processor := socket.NewProcessor(slackClient, qaArchive, qaMatcher)

		go conn.Run(ctx)
		go processor.Run(ctx, conn)

		appLogger.Info("Socket mode enabled")
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})

	qaHandler := handlers.NewQAHandler(qaMatcher, qaArchive, sqliteClient)
	wsHandler := handlers.NewWebSocketHandler(qaMatcher)

	api := app.Group("/api/v1", limiter.Middleware())

	api.Post("/qa/search", qaHandler.HandleSearch)
	api.Get("/qa/history", qaHandler.GetHistory)
	api.Get("/qa/stats", qaHandler.GetStats)
	api.Get("/qa/answers", qaHandler.GetAnswers)
	api.Delete("/qa/cache/:channel", qaHandler.Invalidate)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/qa", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	cancel()
	app.Shutdown()
	appLogger.Info("Server stopped")
}
