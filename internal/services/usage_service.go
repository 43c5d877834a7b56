package services

import (
	"fmt"

	"patent_explorer_go_backend/internal/llm"
	"patent_explorer_go_backend/internal/models"
	"patent_explorer_go_backend/internal/utils/broker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// UsageService is the best-effort telemetry sink: tool costs and token usage
// are logged, pushed to connected websocket clients through the broker, and
// reported to the billing meter for metered customers. Nothing here may fail
// a user-visible operation.
type UsageService struct {
	db     *gorm.DB
	stripe *StripeService
	broker *broker.Broker
}

func NewUsageService(db *gorm.DB, stripeService *StripeService, messageBroker *broker.Broker) *UsageService {
	return &UsageService{db: db, stripe: stripeService, broker: messageBroker}
}

func (s *UsageService) ReportToolCost(userID *uuid.UUID, sessionID, tool string, dollars float64) {
	log.Info().
		Str("tool", tool).
		Str("session", sessionID).
		Float64("costDollars", dollars).
		Msg("Tool call completed")

	if userID == nil {
		return
	}
	s.broker.Publish("usage_update_"+userID.String(),
		fmt.Sprintf(`{"kind":"tool_cost","tool":%q,"costDollars":%f}`, tool, dollars))

	if dollars <= 0 {
		return
	}
	s.meter(*userID, dollars)
}

func (s *UsageService) ReportTokens(userID *uuid.UUID, model string, usage llm.Usage) {
	log.Info().
		Str("model", model).
		Int32("inputTokens", usage.InputTokens).
		Int32("outputTokens", usage.OutputTokens).
		Msg("Generation usage")

	if userID == nil {
		return
	}
	s.broker.Publish("usage_update_"+userID.String(),
		fmt.Sprintf(`{"kind":"tokens","model":%q,"inputTokens":%d,"outputTokens":%d}`,
			model, usage.InputTokens, usage.OutputTokens))

	s.meter(*userID, float64(usage.InputTokens+usage.OutputTokens))
}

func (s *UsageService) meter(userID uuid.UUID, value float64) {
	if s.stripe == nil || !s.stripe.Enabled() {
		return
	}
	var user models.User
	if err := s.db.Where("id = ?", userID).First(&user).Error; err != nil {
		log.Warn().Err(err).Str("user", userID.String()).Msg("Usage metering skipped, user lookup failed")
		return
	}
	if user.Tier != models.TierMetered || user.StripeCustomerID == "" {
		return
	}
	if err := s.stripe.RecordUsage(user.StripeCustomerID, value); err != nil {
		log.Warn().Err(err).Str("user", userID.String()).Msg("Failed to record usage meter event")
	}
}
