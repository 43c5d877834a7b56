package services

import (
	"time"

	"patent_explorer_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionStore is the persistence boundary for chat sessions and their
// message logs.
type SessionStore interface {
	EnsureSession(session *models.ChatSession) error
	AppendMessage(message *models.Message) error
	ReplaceSessionMessages(sessionID string, messages []models.Message) error
	TouchSession(sessionID string, lastMessageAt time.Time) error
	GetSessionByID(sessionID string) (*models.ChatSession, error)
	GetSessionsByOwner(userID *uuid.UUID, anonymousKey string) ([]models.ChatSession, error)
	DeleteSession(sessionID string) error
}

type DefaultSessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) SessionStore {
	return &DefaultSessionStore{db: db}
}

// EnsureSession creates the session on the first user message of a
// conversation and is a no-op when it already exists.
func (s *DefaultSessionStore) EnsureSession(session *models.ChatSession) error {
	return s.db.Where(models.ChatSession{ID: session.ID}).FirstOrCreate(session).Error
}

// AppendMessage writes one message at the end of the session's log. Used for
// the inciting user message, which must be durable before generation starts.
func (s *DefaultSessionStore) AppendMessage(message *models.Message) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var maxSeq int
		if err := tx.Model(&models.Message{}).
			Where("session_id = ?", message.SessionID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		message.Seq = maxSeq + 1
		return tx.Create(message).Error
	})
}

// ReplaceSessionMessages persists the complete transcript for a turn as a
// full replacement. Message IDs that are not valid UUIDs are normalized to
// fresh ones. Concurrent writers of the same session are last-write-wins.
func (s *DefaultSessionStore) ReplaceSessionMessages(sessionID string, messages []models.Message) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		for i := range messages {
			messages[i].SessionID = sessionID
			messages[i].Seq = i + 1
			if _, err := uuid.Parse(messages[i].ID); err != nil {
				messages[i].ID = uuid.New().String()
			}
		}
		if len(messages) == 0 {
			return nil
		}
		return tx.Create(&messages).Error
	})
}

func (s *DefaultSessionStore) TouchSession(sessionID string, lastMessageAt time.Time) error {
	return s.db.Model(&models.ChatSession{}).
		Where("id = ?", sessionID).
		Update("last_message_at", lastMessageAt).Error
}

// GetSessionByID loads a session with its messages in log order.
func (s *DefaultSessionStore) GetSessionByID(sessionID string) (*models.ChatSession, error) {
	var session models.ChatSession
	result := s.db.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("seq asc")
	}).Where("id = ?", sessionID).First(&session)
	if result.Error != nil {
		return nil, result.Error
	}
	return &session, nil
}

func (s *DefaultSessionStore) GetSessionsByOwner(userID *uuid.UUID, anonymousKey string) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	q := s.db.Order("last_message_at desc")
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	} else {
		q = q.Where("anonymous_key = ?", anonymousKey)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSession removes a session and everything it owns: messages, charts
// and CSV artifacts.
func (s *DefaultSessionStore) DeleteSession(sessionID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var session models.ChatSession
		if err := tx.Where("id = ?", sessionID).First(&session).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.Chart{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.CSVArtifact{}).Error; err != nil {
			return err
		}
		return tx.Delete(&session).Error
	})
}
