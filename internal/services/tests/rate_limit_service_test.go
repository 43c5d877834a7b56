package services_test

import (
	"testing"
	"time"

	"patent_explorer_go_backend/internal/models"
	"patent_explorer_go_backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitCheckAndIncrement(t *testing.T) {
	db := newTestDB(t)
	limiter := services.NewRateLimitService(db, 24*time.Hour, map[string]int{
		models.TierAnonymous: 2,
		models.TierFree:      5,
	}, false)

	identity := "anon:198.51.100.4"

	result, err := limiter.Check(identity, models.TierAnonymous)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 2, result.Remaining)

	require.NoError(t, limiter.Increment(identity))
	result, err = limiter.Check(identity, models.TierAnonymous)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.Remaining)

	require.NoError(t, limiter.Increment(identity))
	result, err = limiter.Check(identity, models.TierAnonymous)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.True(t, result.ResetAt.After(time.Now()), "reset time must be in the future")
	assert.Equal(t, 2, result.Limit)
}

func TestRateLimitWindowExpiryResetsCounter(t *testing.T) {
	db := newTestDB(t)
	limiter := services.NewRateLimitService(db, 24*time.Hour, map[string]int{models.TierFree: 1}, false)

	identity := "user-1"
	require.NoError(t, limiter.Increment(identity))

	// Backdate the window so it has already elapsed.
	require.NoError(t, db.Model(&models.RateLimitRecord{}).
		Where("identity = ?", identity).
		Update("reset_at", time.Now().Add(-time.Minute)).Error)

	result, err := limiter.Check(identity, models.TierFree)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.Remaining)

	// The next increment starts a fresh window instead of piling on.
	require.NoError(t, limiter.Increment(identity))
	var record models.RateLimitRecord
	require.NoError(t, db.Where("identity = ?", identity).First(&record).Error)
	assert.Equal(t, 1, record.Count)
	assert.True(t, record.ResetAt.After(time.Now()))
}

func TestRateLimitUnlimitedTiers(t *testing.T) {
	db := newTestDB(t)
	limiter := services.NewRateLimitService(db, 24*time.Hour, map[string]int{
		models.TierAnonymous: 5,
	}, false)

	// Tiers without a configured limit are unlimited.
	result, err := limiter.Check("user-2", models.TierUnlimited)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, -1, result.Remaining)
}

func TestRateLimitBypassInDevelopment(t *testing.T) {
	db := newTestDB(t)
	limiter := services.NewRateLimitService(db, 24*time.Hour, map[string]int{models.TierAnonymous: 1}, true)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Increment("anon:dev"))
		result, err := limiter.Check("anon:dev", models.TierAnonymous)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}
