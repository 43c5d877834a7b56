package models

import "time"

// RateLimitRecord counts user-initiated turns for one identity within the
// current window. Identity is either a user UUID or "anon:<ip>".
type RateLimitRecord struct {
	Identity  string    `gorm:"primaryKey"`
	Count     int
	ResetAt   time.Time
	UpdatedAt time.Time
}
