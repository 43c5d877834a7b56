package main

import (
	"context"
	"net/http"
	"time"

	"patent_explorer_go_backend/cmd/api/config"
	"patent_explorer_go_backend/internal/api"
	"patent_explorer_go_backend/internal/auth"
	"patent_explorer_go_backend/internal/database"
	"patent_explorer_go_backend/internal/llm"
	"patent_explorer_go_backend/internal/models"
	"patent_explorer_go_backend/internal/sandbox"
	"patent_explorer_go_backend/internal/search"
	"patent_explorer_go_backend/internal/services"
	"patent_explorer_go_backend/internal/tools"
	"patent_explorer_go_backend/internal/utils/broker"
	"patent_explorer_go_backend/internal/wsocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	database.InitDB(cfg)

	// External service clients.
	var genaiClient *genai.Client
	if cfg.GeminiAPIKey != "" {
		var err error
		genaiClient, err = genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GenAI client")
		}
		defer genaiClient.Close()
	}

	valyuClient := search.NewClient(cfg.ValyuBaseURL, cfg.ValyuAPIKey)
	sandboxClient := sandbox.NewClient(cfg.SandboxBaseURL, cfg.SandboxAPIKey)
	stripeService := services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripeMeterName)

	// Internal services.
	messageBroker := broker.NewBroker()
	sessionStore := services.NewSessionStore(database.DB)
	artifactStore := services.NewArtifactStore(database.DB)
	userService := services.NewUserService(database.DB)
	usageService := services.NewUsageService(database.DB, stripeService, messageBroker)

	limiter := services.NewRateLimitService(database.DB, cfg.RateLimitWindow, map[string]int{
		models.TierAnonymous: cfg.AnonymousLimit,
		models.TierFree:      cfg.FreeLimit,
	}, cfg.Development())

	registry := tools.NewRegistry(
		tools.NewPatentSearchTool(valyuClient, usageService),
		tools.NewPatentAnalysisTool(valyuClient, usageService),
		tools.NewWebSearchTool(valyuClient, usageService),
		tools.NewCodeExecutionTool(sandboxClient, usageService),
		tools.NewCreateChartTool(artifactStore),
		tools.NewCreateCSVTool(artifactStore),
	)

	selector := llm.NewSelector(cfg, genaiClient)
	chatService := services.NewChatService(sessionStore, limiter, selector, registry, usageService)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Local-Provider", "X-Local-Model"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // TODO: restrict to AllowedOrigins once the frontend host is fixed
		},
	}
	wsHandler := wsocket.NewHandler(chatService, sessionStore, upgrader)

	api.SetupRoutes(r, cfg, chatService, sessionStore, artifactStore, stripeService, userService)
	auth.SetupRoutes(r, cfg, userService)

	r.GET("/ws", auth.RequireAuth(cfg, userService), func(c *gin.Context) {
		user, _ := c.Get("user")
		wsHandler.HandleWebSocket(c.Writer, c.Request, user.(*models.User), messageBroker)
	})

	log.Info().Str("port", cfg.Port).Str("mode", string(cfg.Mode)).Msg("Server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
