package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "patent_explorer_go_backend/internal/errors"
	"patent_explorer_go_backend/internal/llm"
	"patent_explorer_go_backend/internal/models"
	"patent_explorer_go_backend/internal/tools"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// systemPrompt is the standing instruction set attached to every turn. The
// five-calls-per-step bound is enforced here by instruction, not by code.
const systemPrompt = `You are Patent Explorer, an assistant that answers questions about patents.

Use the available tools to ground every answer:
- patentSearch for finding patents on a topic.
- patentAnalysis for specific patent numbers, citations and patent families.
- webSearch for company or technology context outside the patent index.
- codeExecution for numeric analysis; print the values you need.
- createChart and createCSV to present data; embed the returned display value verbatim in your answer.

Never invent patent numbers: only cite numbers present in tool results.
Make at most five tool calls in a single step.
Format answers in markdown with readable paragraphs.`

const maxToolSteps = 8

// Identity is the resolved caller of a turn: an authenticated user or an
// anonymous key derived from the client address.
type Identity struct {
	User         *models.User
	AnonymousKey string
}

func (id Identity) Key() string {
	if id.User != nil {
		return id.User.ID.String()
	}
	return id.AnonymousKey
}

func (id Identity) Tier() string {
	if id.User != nil {
		return id.User.Tier
	}
	return models.TierAnonymous
}

func (id Identity) UserID() *uuid.UUID {
	if id.User != nil {
		return &id.User.ID
	}
	return nil
}

// ProviderSelector is the chat service's view of llm.Selector.
type ProviderSelector interface {
	Select(ctx context.Context, tier string, pref llm.LocalPreference, record llm.UsageRecorder) (llm.Provider, string, error)
}

// IncomingMessage is a transcript entry as submitted by the client.
type IncomingMessage struct {
	ID      string               `json:"id"`
	Role    string               `json:"role"`
	Content string               `json:"content"`
	Parts   []models.MessagePart `json:"parts,omitempty"`
}

type TurnInput struct {
	SessionID string
	Messages  []IncomingMessage
	Local     llm.LocalPreference
}

// StreamEvent is one increment of the streamed chat response.
type StreamEvent struct {
	Type       string          `json:"type"` // text, tool_call, tool_result, usage, done
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type ChatService struct {
	sessions SessionStore
	limiter  *RateLimitService
	selector ProviderSelector
	registry *tools.Registry
	usage    *UsageService
}

func NewChatService(
	sessions SessionStore,
	limiter *RateLimitService,
	selector ProviderSelector,
	registry *tools.Registry,
	usage *UsageService,
) *ChatService {
	return &ChatService{
		sessions: sessions,
		limiter:  limiter,
		selector: selector,
		registry: registry,
		usage:    usage,
	}
}

// RunTurn executes one chat turn: gate on the rate limit, persist the user
// message before generation starts, stream the tool-calling conversation,
// then persist the complete transcript as a full replacement.
//
// Errors returned before the first emit carry an HTTP status; once streaming
// has begun the caller should surface them as an in-stream error event.
func (s *ChatService) RunTurn(ctx context.Context, identity Identity, in TurnInput, emit func(StreamEvent)) error {
	userMsg, err := incitingMessage(in.Messages)
	if err != nil {
		return err
	}

	limit, err := s.limiter.Check(identity.Key(), identity.Tier())
	if err != nil {
		return apperrors.LogAndReturn500(err)
	}
	if !limit.Allowed {
		return apperrors.NewRateLimitError("Rate limit exceeded", map[string]interface{}{
			"resetTime": limit.ResetAt,
			"limit":     limit.Limit,
			"remaining": 0,
		})
	}
	if identity.User != nil && identity.User.Tier == models.TierMetered && identity.User.StripeCustomerID == "" {
		return apperrors.NewPaymentRequiredError("A payment method is required for metered usage")
	}

	// Anonymous turns are counted by the caller once the turn is accepted;
	// the server only increments authenticated identities.
	if identity.User != nil {
		_ = s.limiter.Increment(identity.Key())
	}

	session := &models.ChatSession{
		ID:            in.SessionID,
		UserID:        identity.UserID(),
		AnonymousKey:  identity.AnonymousKey,
		Title:         deriveTitle(userMsg.Content),
		LastMessageAt: time.Now(),
	}
	if err := s.sessions.EnsureSession(session); err != nil {
		return apperrors.LogAndReturn500(err)
	}

	// The prompt must survive a mid-stream disconnect, so it is written
	// before any generation happens.
	persisted := incomingToModel(*userMsg, in.SessionID)
	if err := s.sessions.AppendMessage(&persisted); err != nil {
		return apperrors.LogAndReturn500(err)
	}

	record := func(model string, usage llm.Usage) {
		s.usage.ReportTokens(identity.UserID(), model, usage)
	}
	provider, route, err := s.selector.Select(ctx, identity.Tier(), in.Local, record)
	if err != nil {
		return apperrors.ClassifyGenerationError(err)
	}
	log.Info().Str("route", route).Str("session", in.SessionID).Msg("Provider selected")

	start := time.Now()
	conversation := historyFromIncoming(in.Messages)
	transcript := make([]models.Message, 0, len(in.Messages)+4)
	for _, m := range in.Messages {
		transcript = append(transcript, incomingToModel(m, in.SessionID))
	}

	for step := 0; step < maxToolSteps; step++ {
		turn, genErr := provider.StreamTurn(ctx, llm.TurnRequest{
			System:  systemPrompt,
			History: conversation,
			Tools:   s.registry.Definitions(),
		}, func(ev llm.Event) { s.forward(ev, emit) })
		if genErr != nil {
			return apperrors.ClassifyGenerationError(genErr)
		}

		conversation = append(conversation, *turn)
		transcript = append(transcript, assistantMessage(in.SessionID, turn))

		if len(turn.ToolCalls) == 0 {
			break
		}

		toolTurn := llm.Turn{Role: llm.RoleTool}
		toolMsg := models.Message{ID: uuid.New().String(), SessionID: in.SessionID, Role: models.RoleTool}
		var toolParts []models.MessagePart
		for _, call := range turn.ToolCalls {
			payload := s.registry.Execute(ctx, call.Name, tools.Call{
				SessionID: in.SessionID,
				UserID:    identity.UserID(),
				Args:      call.Args,
			})
			rawPayload, _ := json.Marshal(payload)
			emit(StreamEvent{Type: "tool_result", ToolCallID: call.ID, ToolName: call.Name, Payload: rawPayload})

			toolTurn.ToolResults = append(toolTurn.ToolResults, llm.ToolResult{
				ID:      call.ID,
				Name:    call.Name,
				Payload: payload,
			})
			toolParts = append(toolParts, models.MessagePart{
				Type:       models.PartToolResult,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Result:     rawPayload,
			})
		}
		toolMsg.Parts, _ = json.Marshal(toolParts)
		conversation = append(conversation, toolTurn)
		transcript = append(transcript, toolMsg)
	}

	elapsed := time.Since(start)
	if n := len(transcript); n > 0 && transcript[n-1].Role == models.RoleAssistant {
		transcript[n-1].ProcessingMS = elapsed.Milliseconds()
	}

	// Transcript persistence is best-effort: the answer already streamed.
	if err := s.sessions.ReplaceSessionMessages(in.SessionID, transcript); err != nil {
		log.Error().Err(err).Str("session", in.SessionID).Msg("Failed to persist transcript")
	}
	if err := s.sessions.TouchSession(in.SessionID, time.Now()); err != nil {
		log.Error().Err(err).Str("session", in.SessionID).Msg("Failed to update session activity")
	}

	emit(StreamEvent{Type: "done"})
	return nil
}

func (s *ChatService) forward(ev llm.Event, emit func(StreamEvent)) {
	switch ev.Type {
	case llm.EventText:
		emit(StreamEvent{Type: "text", Text: ev.Text})
	case llm.EventToolCall:
		args, _ := json.Marshal(ev.ToolCall.Args)
		emit(StreamEvent{Type: "tool_call", ToolCallID: ev.ToolCall.ID, ToolName: ev.ToolCall.Name, Payload: args})
	case llm.EventUsage:
		payload, _ := json.Marshal(ev.Usage)
		emit(StreamEvent{Type: "usage", Payload: payload})
	}
}

// incitingMessage returns the new user message of the turn, which must be
// the last transcript entry.
func incitingMessage(messages []IncomingMessage) (*IncomingMessage, error) {
	if len(messages) == 0 {
		return nil, apperrors.New400Error("messages must not be empty")
	}
	last := messages[len(messages)-1]
	if last.Role != models.RoleUser {
		return nil, apperrors.New400Error("the last message must be a user message")
	}
	if strings.TrimSpace(last.Content) == "" && len(last.Parts) == 0 {
		return nil, apperrors.New400Error("the user message is empty")
	}
	return &last, nil
}

func deriveTitle(content string) string {
	title := strings.TrimSpace(content)
	// Truncate on rune boundaries, byte slicing can split multi-byte text.
	if r := []rune(title); len(r) > 80 {
		title = string(r[:80])
	}
	if title == "" {
		title = "New chat"
	}
	return title
}

func incomingToModel(m IncomingMessage, sessionID string) models.Message {
	id := m.ID
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.New().String()
	}
	parts := m.Parts
	if len(parts) == 0 && m.Content != "" {
		parts = []models.MessagePart{{Type: models.PartText, Text: m.Content}}
	}
	raw, _ := json.Marshal(parts)
	return models.Message{
		ID:        id,
		SessionID: sessionID,
		Role:      m.Role,
		Parts:     raw,
	}
}

func assistantMessage(sessionID string, turn *llm.Turn) models.Message {
	var parts []models.MessagePart
	if turn.Text != "" {
		parts = append(parts, models.MessagePart{Type: models.PartText, Text: turn.Text})
	}
	for _, call := range turn.ToolCalls {
		args, _ := json.Marshal(call.Args)
		parts = append(parts, models.MessagePart{
			Type:       models.PartToolCall,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Args:       args,
		})
	}
	raw, _ := json.Marshal(parts)
	return models.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Parts:     raw,
	}
}

// historyFromIncoming converts the client transcript into provider turns.
func historyFromIncoming(messages []IncomingMessage) []llm.Turn {
	turns := make([]llm.Turn, 0, len(messages))
	for _, m := range messages {
		turn := llm.Turn{Role: m.Role}
		if len(m.Parts) == 0 {
			turn.Text = m.Content
		}
		for _, part := range m.Parts {
			switch part.Type {
			case models.PartText:
				turn.Text += part.Text
			case models.PartToolCall:
				args := map[string]interface{}{}
				_ = json.Unmarshal(part.Args, &args)
				turn.ToolCalls = append(turn.ToolCalls, llm.ToolCall{
					ID:   part.ToolCallID,
					Name: part.ToolName,
					Args: args,
				})
			case models.PartToolResult:
				payload := map[string]interface{}{}
				_ = json.Unmarshal(part.Result, &payload)
				turn.ToolResults = append(turn.ToolResults, llm.ToolResult{
					ID:      part.ToolCallID,
					Name:    part.ToolName,
					Payload: payload,
				})
			}
		}
		turns = append(turns, turn)
	}
	return turns
}
