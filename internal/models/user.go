package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TierFree      = "free"
	TierMetered   = "metered"
	TierUnlimited = "unlimited"
	TierAnonymous = "anonymous"
)

type User struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key"`
	Auth0ID          string    `gorm:"unique;not null"`
	Email            string    `gorm:"unique;not null"`
	Name             string
	Nickname         string
	Tier             string `gorm:"default:free"`
	StripeCustomerID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

// BeforeCreate assigns the ID client-side so the same model works on both
// Postgres and the embedded development database.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
