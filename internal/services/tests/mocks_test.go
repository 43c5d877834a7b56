package services_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"patent_explorer_go_backend/internal/database"
	"patent_explorer_go_backend/internal/llm"
	"patent_explorer_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) EnsureSession(session *models.ChatSession) error {
	args := m.Called(session)
	return args.Error(0)
}

func (m *MockSessionStore) AppendMessage(message *models.Message) error {
	args := m.Called(message)
	return args.Error(0)
}

func (m *MockSessionStore) ReplaceSessionMessages(sessionID string, messages []models.Message) error {
	args := m.Called(sessionID, messages)
	return args.Error(0)
}

func (m *MockSessionStore) TouchSession(sessionID string, lastMessageAt time.Time) error {
	args := m.Called(sessionID, lastMessageAt)
	return args.Error(0)
}

func (m *MockSessionStore) GetSessionByID(sessionID string) (*models.ChatSession, error) {
	args := m.Called(sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatSession), args.Error(1)
}

func (m *MockSessionStore) GetSessionsByOwner(userID *uuid.UUID, anonymousKey string) ([]models.ChatSession, error) {
	args := m.Called(userID, anonymousKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChatSession), args.Error(1)
}

func (m *MockSessionStore) DeleteSession(sessionID string) error {
	args := m.Called(sessionID)
	return args.Error(0)
}

// MockProvider scripts the assistant turns of a conversation. Each call to
// StreamTurn pops the next scripted step.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string {
	return "mock"
}

func (m *MockProvider) StreamTurn(ctx context.Context, req llm.TurnRequest, emit func(llm.Event)) (*llm.Turn, error) {
	args := m.Called(ctx, req, emit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	turn := args.Get(0).(*llm.Turn)
	if turn.Text != "" {
		emit(llm.Event{Type: llm.EventText, Text: turn.Text})
	}
	for i := range turn.ToolCalls {
		emit(llm.Event{Type: llm.EventToolCall, ToolCall: &turn.ToolCalls[i]})
	}
	return turn, args.Error(1)
}

type MockSelector struct {
	mock.Mock
}

func (m *MockSelector) Select(ctx context.Context, tier string, pref llm.LocalPreference, record llm.UsageRecorder) (llm.Provider, string, error) {
	args := m.Called(ctx, tier, pref, record)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(llm.Provider), args.String(1), args.Error(2)
}
