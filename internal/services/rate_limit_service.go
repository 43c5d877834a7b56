package services

import (
	"errors"
	"time"

	"patent_explorer_go_backend/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type RateLimitResult struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetTime"`
	Limit     int       `json:"limit"`
}

// RateLimitService caps user-initiated turns per window. Only the single
// inciting user message of a turn counts; assistant and tool continuation
// messages never do. The whole service is bypassed in development mode.
type RateLimitService struct {
	db     *gorm.DB
	window time.Duration
	limits map[string]int // tier -> turns per window; <=0 means unlimited
	bypass bool
}

func NewRateLimitService(db *gorm.DB, window time.Duration, limits map[string]int, bypass bool) *RateLimitService {
	return &RateLimitService{db: db, window: window, limits: limits, bypass: bypass}
}

// Check reports whether the identity may start another turn. It never
// mutates the counter; Increment is a separate step so anonymous increments
// can be deferred to the caller.
func (s *RateLimitService) Check(identity, tier string) (RateLimitResult, error) {
	limit := s.limits[tier]
	if s.bypass || limit <= 0 {
		return RateLimitResult{Allowed: true, Remaining: -1, Limit: 0}, nil
	}

	now := time.Now()
	var record models.RateLimitRecord
	err := s.db.Where("identity = ?", identity).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !now.Before(record.ResetAt)) {
		return RateLimitResult{Allowed: true, Remaining: limit, ResetAt: now.Add(s.window), Limit: limit}, nil
	}
	if err != nil {
		return RateLimitResult{}, err
	}

	remaining := limit - record.Count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitResult{
		Allowed:   record.Count < limit,
		Remaining: remaining,
		ResetAt:   record.ResetAt,
		Limit:     limit,
	}, nil
}

// Increment counts one turn against the identity, starting a new window if
// the previous one has elapsed. Callers run this only after Check passes;
// failures are logged and must not block the response already in flight.
func (s *RateLimitService) Increment(identity string) error {
	if s.bypass {
		return nil
	}
	now := time.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var record models.RateLimitRecord
		err := tx.Where("identity = ?", identity).First(&record).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			record = models.RateLimitRecord{Identity: identity, Count: 1, ResetAt: now.Add(s.window)}
			return tx.Create(&record).Error
		case err != nil:
			return err
		}
		if !now.Before(record.ResetAt) {
			record.Count = 1
			record.ResetAt = now.Add(s.window)
		} else {
			record.Count++
		}
		return tx.Save(&record).Error
	})
	if err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("Failed to increment rate limit counter")
	}
	return err
}
