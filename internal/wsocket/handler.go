package wsocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"patent_explorer_go_backend/internal/llm"
	"patent_explorer_go_backend/internal/models"
	"patent_explorer_go_backend/internal/services"
	"patent_explorer_go_backend/internal/utils/broker"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Handler serves the websocket chat transport. It runs the same turn
// pipeline as the HTTP endpoint and additionally pushes usage updates
// published on the message broker.
type Handler struct {
	chatService  *services.ChatService
	sessionStore services.SessionStore
	upgrader     websocket.Upgrader
}

type Message struct {
	Type      string          `json:"type"`
	Content   string          `json:"content,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// safeConn serializes writes. The connection supports at most one concurrent
// writer, and the usage-update goroutine writes while a turn is streaming.
type safeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *safeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func NewHandler(chatService *services.ChatService, sessionStore services.SessionStore, upgrader websocket.Upgrader) *Handler {
	return &Handler{
		chatService:  chatService,
		sessionStore: sessionStore,
		upgrader:     upgrader,
	}
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, user *models.User, messageBroker *broker.Broker) {
	rawConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error upgrading websocket connection")
		return
	}
	defer rawConn.Close()
	conn := &safeConn{conn: rawConn}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	identity := services.Identity{User: user}

	usageTopic := "usage_update_" + user.ID.String()
	usageChan := messageBroker.Subscribe(usageTopic)
	defer messageBroker.Unsubscribe(usageTopic, usageChan)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-usageChan:
				if err := conn.WriteJSON(Message{
					Type:    "usage_update",
					Content: msg.(string),
				}); err != nil {
					log.Error().Err(err).Msg("Error sending usage update")
				}
			}
		}
	}()

	for {
		_, raw, err := rawConn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg("Websocket read ended")
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Debug().Err(err).Msg("Ignoring malformed websocket message")
			continue
		}

		switch msg.Type {
		case "message":
			h.handleChatMessage(ctx, conn, identity, msg)
		case "get_history":
			h.sendHistory(conn, identity, msg.SessionID)
		default:
			log.Debug().Str("type", msg.Type).Msg("Unknown websocket message type")
		}
	}
}

func (h *Handler) handleChatMessage(ctx context.Context, conn *safeConn, identity services.Identity, msg Message) {
	history, err := h.loadHistory(identity, msg.SessionID)
	if err != nil {
		h.writeError(conn, msg.SessionID, err)
		return
	}
	history = append(history, services.IncomingMessage{Role: models.RoleUser, Content: msg.Content})

	input := services.TurnInput{
		SessionID: msg.SessionID,
		Messages:  history,
		Local:     llm.LocalPreference{},
	}

	emit := func(ev services.StreamEvent) {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if err := conn.WriteJSON(Message{
			Type:      ev.Type,
			SessionID: msg.SessionID,
			Payload:   payload,
		}); err != nil {
			log.Error().Err(err).Msg("Error writing stream event")
		}
	}

	if err := h.chatService.RunTurn(ctx, identity, input, emit); err != nil {
		h.writeError(conn, msg.SessionID, err)
	}
}

// loadHistory rebuilds the incoming transcript from the stored session.
// A missing session is fine, the turn pipeline creates it.
func (h *Handler) loadHistory(identity services.Identity, sessionID string) ([]services.IncomingMessage, error) {
	session, err := h.sessionStore.GetSessionByID(sessionID)
	if err != nil {
		return nil, nil
	}
	if !ownedBy(session, identity) {
		return nil, fmt.Errorf("session %s does not belong to caller", sessionID)
	}

	history := make([]services.IncomingMessage, 0, len(session.Messages))
	for _, m := range session.Messages {
		var parts []models.MessagePart
		if err := json.Unmarshal(m.Parts, &parts); err != nil {
			return nil, err
		}
		history = append(history, services.IncomingMessage{
			ID:    m.ID,
			Role:  m.Role,
			Parts: parts,
		})
	}
	return history, nil
}

func (h *Handler) sendHistory(conn *safeConn, identity services.Identity, sessionID string) {
	session, err := h.sessionStore.GetSessionByID(sessionID)
	if err != nil {
		h.writeError(conn, sessionID, fmt.Errorf("session not found"))
		return
	}
	if !ownedBy(session, identity) {
		h.writeError(conn, sessionID, fmt.Errorf("session %s does not belong to caller", sessionID))
		return
	}
	payload, err := json.Marshal(session)
	if err != nil {
		h.writeError(conn, sessionID, err)
		return
	}
	if err := conn.WriteJSON(Message{
		Type:      "history",
		SessionID: sessionID,
		Payload:   payload,
	}); err != nil {
		log.Error().Err(err).Msg("Error sending session history")
	}
}

func ownedBy(session *models.ChatSession, identity services.Identity) bool {
	if session.UserID != nil {
		return identity.User != nil && *session.UserID == identity.User.ID
	}
	return session.AnonymousKey == identity.AnonymousKey
}

func (h *Handler) writeError(conn *safeConn, sessionID string, err error) {
	log.Error().Err(err).Str("sessionId", sessionID).Msg("Websocket chat error")
	if werr := conn.WriteJSON(Message{
		Type:      "error",
		Content:   err.Error(),
		SessionID: sessionID,
	}); werr != nil {
		log.Error().Err(werr).Msg("Error writing error message")
	}
}
