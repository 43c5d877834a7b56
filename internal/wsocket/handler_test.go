package wsocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"patent_explorer_go_backend/internal/database"
	"patent_explorer_go_backend/internal/llm"
	"patent_explorer_go_backend/internal/models"
	"patent_explorer_go_backend/internal/services"
	"patent_explorer_go_backend/internal/tools"
	"patent_explorer_go_backend/internal/utils/broker"
	"patent_explorer_go_backend/internal/wsocket"

	"github.com/gorilla/websocket"
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

// publishingProvider pushes usage updates on the broker between text chunks,
// so the usage goroutine and the stream emitter write to the socket at the
// same time.
type publishingProvider struct {
	messageBroker *broker.Broker
	topic         string
}

func (p *publishingProvider) Name() string { return "stub/model" }

func (p *publishingProvider) StreamTurn(_ context.Context, _ llm.TurnRequest, emit func(llm.Event)) (*llm.Turn, error) {
	for i := 0; i < 20; i++ {
		p.messageBroker.Publish(p.topic, `{"tool":"patent_search","cost":0.01}`)
		emit(llm.Event{Type: llm.EventText, Text: "chunk "})
	}
	return &llm.Turn{Role: llm.RoleAssistant, Text: "chunk chunk"}, nil
}

type stubSelector struct {
	provider llm.Provider
}

func (s *stubSelector) Select(_ context.Context, _ string, _ llm.LocalPreference, _ llm.UsageRecorder) (llm.Provider, string, error) {
	return s.provider, "hosted", nil
}

func TestHandleWebSocketConcurrentUsageAndStreamWrites(t *testing.T) {
	db := newTestDB(t)
	user := &models.User{Auth0ID: "auth0|ws-writer", Email: "ws@example.com", Tier: models.TierFree}
	require.NoError(t, db.Create(user).Error)

	messageBroker := broker.NewBroker()
	sessionStore := services.NewSessionStore(db)
	limiter := services.NewRateLimitService(db, time.Minute, map[string]int{}, true)
	usage := services.NewUsageService(db, services.NewStripeService("", "", ""), messageBroker)
	selector := &stubSelector{provider: &publishingProvider{
		messageBroker: messageBroker,
		topic:         "usage_update_" + user.ID.String(),
	}}
	chatService := services.NewChatService(sessionStore, limiter, selector, tools.NewRegistry(), usage)

	handler := wsocket.NewHandler(chatService, sessionStore, websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.HandleWebSocket(w, r, user, messageBroker)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsocket.Message{
		Type:      "message",
		Content:   "how many wind turbine patents were filed in 2023?",
		SessionID: "sess-ws-1",
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	usageUpdates := 0
	for {
		var msg wsocket.Message
		require.NoError(t, conn.ReadJSON(&msg))
		require.NotEqual(t, "error", msg.Type)
		if msg.Type == "usage_update" {
			usageUpdates++
		}
		if msg.Type == "done" {
			break
		}
	}
	require.Greater(t, usageUpdates, 0, "expected broker pushes to reach the client mid-turn")
}
