package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"patent_explorer_go_backend/cmd/api/config"
	"patent_explorer_go_backend/internal/auth"
	apperrors "patent_explorer_go_backend/internal/errors"
	"patent_explorer_go_backend/internal/llm"
	"patent_explorer_go_backend/internal/models"
	"patent_explorer_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"
)

func SetupRoutes(
	r *gin.Engine,
	cfg *config.Config,
	chatService *services.ChatService,
	sessionStore services.SessionStore,
	artifactStore services.ArtifactStore,
	stripeService *services.StripeService,
	userService *services.UserService,
) {
	api := r.Group("/api")
	{
		api.POST("/chat", auth.OptionalAuth(cfg, userService), chatHandler(cfg, chatService))
		api.GET("/sessions", auth.RequireAuth(cfg, userService), listSessionsHandler(sessionStore))
		api.GET("/sessions/:id", auth.OptionalAuth(cfg, userService), getSessionHandler(sessionStore))
		api.DELETE("/sessions/:id", auth.RequireAuth(cfg, userService), deleteSessionHandler(sessionStore))

		api.GET("/charts/:id", getChartHandler(artifactStore))
		api.GET("/charts/:id/image", chartImageHandler(artifactStore))
		api.GET("/csv/:id", getCSVHandler(artifactStore))
		api.GET("/csv/:id/download", downloadCSVHandler(artifactStore))
		api.GET("/csv/:id/xlsx", exportCSVXLSXHandler(artifactStore))

		api.POST("/purchase-credits", auth.RequireAuth(cfg, userService), purchaseCreditsHandler(cfg, stripeService))
		api.POST("/stripe/webhook", stripeWebhookHandler(stripeService, userService))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": string(cfg.Mode)})
	})
}

func chatHandler(cfg *config.Config, chatService *services.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Messages  []services.IncomingMessage `json:"messages" binding:"required"`
			SessionID string                     `json:"sessionId" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		identity := auth.IdentityFromContext(c)
		input := services.TurnInput{
			SessionID: request.SessionID,
			Messages:  request.Messages,
			Local: llm.LocalPreference{
				Provider: c.GetHeader("X-Local-Provider"),
				Model:    c.GetHeader("X-Local-Model"),
			},
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.TurnTimeout)
		defer cancel()

		streaming := false
		emit := func(ev services.StreamEvent) {
			if !streaming {
				c.Header("Content-Type", "text/event-stream")
				c.Header("Cache-Control", "no-cache")
				c.Header("Connection", "keep-alive")
				streaming = true
			}
			c.SSEvent(ev.Type, ev)
			c.Writer.Flush()
		}

		if err := chatService.RunTurn(ctx, identity, input, emit); err != nil {
			if !streaming {
				apperrors.HandleError(c, err)
				return
			}
			// Headers are gone; the failure has to travel in-stream.
			custom := apperrors.ClassifyGenerationError(err)
			c.SSEvent("error", gin.H{"error": custom.Code, "message": custom.Message})
			c.Writer.Flush()
		}
	}
}

func listSessionsHandler(sessionStore services.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := auth.IdentityFromContext(c)
		sessions, err := sessionStore.GetSessionsByOwner(identity.UserID(), identity.AnonymousKey)
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	}
}

func getSessionHandler(sessionStore services.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := sessionStore.GetSessionByID(c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, apperrors.New404Error("Session not found"))
			return
		}
		if !ownsSession(c, session) {
			apperrors.HandleError(c, apperrors.New403Error())
			return
		}

		messages := make([]gin.H, 0, len(session.Messages))
		for _, msg := range session.Messages {
			var parts []models.MessagePart
			_ = json.Unmarshal(msg.Parts, &parts)
			messages = append(messages, gin.H{
				"id":           msg.ID,
				"role":         msg.Role,
				"parts":        parts,
				"processingMs": msg.ProcessingMS,
				"createdAt":    msg.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"id":            session.ID,
			"title":         session.Title,
			"lastMessageAt": session.LastMessageAt,
			"messages":      messages,
		})
	}
}

func deleteSessionHandler(sessionStore services.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := sessionStore.GetSessionByID(c.Param("id"))
		if err != nil {
			apperrors.HandleError(c, apperrors.New404Error("Session not found"))
			return
		}
		if !ownsSession(c, session) {
			apperrors.HandleError(c, apperrors.New403Error())
			return
		}
		if err := sessionStore.DeleteSession(session.ID); err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": session.ID})
	}
}

func ownsSession(c *gin.Context, session *models.ChatSession) bool {
	identity := auth.IdentityFromContext(c)
	if session.UserID != nil {
		return identity.User != nil && *session.UserID == identity.User.ID
	}
	return session.AnonymousKey == identity.AnonymousKey
}

func purchaseCreditsHandler(cfg *config.Config, stripeService *services.StripeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := c.Get("user")
		userModel, ok := user.(*models.User)
		if !ok {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		var request struct {
			SuccessURL string `json:"successUrl" binding:"required"`
			CancelURL  string `json:"cancelUrl" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		session, err := stripeService.CreateCheckoutSession(
			userModel.ID.String(), cfg.StripePriceID, request.SuccessURL, request.CancelURL)
		if err != nil {
			apperrors.HandleError(c, apperrors.LogAndReturn500(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": session.ID})
	}
}

func stripeWebhookHandler(stripeService *services.StripeService, userService *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const MaxBodyBytes = int64(65536)
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			apperrors.HandleError(c, apperrors.New400Error("Error reading request body"))
			return
		}

		event, err := stripeService.HandleWebhook(payload, c.GetHeader("Stripe-Signature"))
		if err != nil {
			apperrors.HandleError(c, apperrors.New400Error("Failed to verify webhook signature"))
			return
		}

		switch event.Type {
		case "checkout.session.completed":
			var session stripe.CheckoutSession
			if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
				apperrors.HandleError(c, apperrors.New400Error("Failed to parse checkout session"))
				return
			}
			if err := processCompletedCheckout(session, userService); err != nil {
				apperrors.HandleError(c, apperrors.LogAndReturn500(err))
				return
			}
		default:
			log.Debug().Str("type", string(event.Type)).Msg("Unhandled stripe event")
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func processCompletedCheckout(session stripe.CheckoutSession, userService *services.UserService) error {
	userID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		return err
	}
	// The client reference is caller-supplied; reject checkouts that do not
	// map to a known user rather than creating a dangling billing record.
	user, err := userService.GetUserByID(userID)
	if err != nil {
		return fmt.Errorf("checkout for unknown user %s: %w", userID, err)
	}
	customerID := ""
	if session.Customer != nil {
		customerID = session.Customer.ID
	}
	return userService.SetBilling(user.ID, models.TierMetered, customerID)
}
