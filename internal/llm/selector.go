package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"patent_explorer_go_backend/cmd/api/config"
	"patent_explorer_go_backend/internal/models"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
)

// LocalPreference carries the client's X-Local-Provider / X-Local-Model
// headers; honored in development only.
type LocalPreference struct {
	Provider string
	Model    string
}

// UsageRecorder receives token usage for metered-tier requests.
type UsageRecorder func(model string, usage Usage)

// Selector decides which backend serves a request: a probed local model
// server in development, otherwise the hosted gateway or the direct vendor
// API, with metered users wrapped for usage tracking.
type Selector struct {
	cfg    *config.Config
	gemini *genai.Client
	probe  *http.Client
}

func NewSelector(cfg *config.Config, gemini *genai.Client) *Selector {
	return &Selector{
		cfg:    cfg,
		gemini: gemini,
		probe:  &http.Client{Timeout: cfg.LocalProbeTimeout},
	}
}

// Select returns the provider and a human-readable description of the chosen
// route. Probe failures never surface; they only trigger fallback.
func (s *Selector) Select(ctx context.Context, tier string, pref LocalPreference, record UsageRecorder) (Provider, string, error) {
	if s.cfg.Development() {
		if provider, route, ok := s.selectLocal(ctx, pref); ok {
			return provider, route, nil
		}
		provider, route, err := s.selectHosted()
		if err != nil {
			return nil, "", err
		}
		return provider, "development/fallback " + route, nil
	}

	provider, route, err := s.selectHosted()
	if err != nil {
		return nil, "", err
	}
	if tier == models.TierMetered && record != nil {
		return &meteredProvider{Provider: provider, record: record},
			"production/metered " + route, nil
	}
	return provider, "production/" + tier + " " + route, nil
}

func (s *Selector) selectHosted() (Provider, string, error) {
	if s.cfg.GatewayAPIKey != "" {
		p := NewOpenAIProvider("gateway", s.cfg.GatewayBaseURL, s.cfg.GatewayAPIKey, s.cfg.GatewayModel)
		return p, fmt.Sprintf("gateway model=%s", s.cfg.GatewayModel), nil
	}
	if s.gemini != nil {
		p := NewGeminiProvider(s.gemini, s.cfg.GeminiModel)
		return p, fmt.Sprintf("gemini model=%s", s.cfg.GeminiModel), nil
	}
	return nil, "", errors.New("no LLM backend configured: set GATEWAY_API_KEY or GEMINI_API_KEY")
}

type localServer struct {
	name    string
	baseURL string
	list    func(ctx context.Context, baseURL string) ([]string, error)
}

func (s *Selector) selectLocal(ctx context.Context, pref LocalPreference) (Provider, string, bool) {
	servers := []localServer{
		{name: "ollama", baseURL: s.cfg.OllamaBaseURL, list: s.listOllamaModels},
		{name: "lmstudio", baseURL: s.cfg.LocalAIBaseURL, list: s.listOpenAIModels},
	}
	if pref.Provider != "" {
		for i, srv := range servers {
			if srv.name == strings.ToLower(pref.Provider) && i != 0 {
				servers[0], servers[i] = servers[i], servers[0]
			}
		}
	}

	for _, srv := range servers {
		available, err := srv.list(ctx, srv.baseURL)
		if err != nil || len(available) == 0 {
			log.Debug().Err(err).Str("provider", srv.name).Msg("Local model server probe failed")
			continue
		}
		model := pickModel(available, pref.Model, s.cfg.LocalModelPrefs)
		provider := NewOpenAIProvider(srv.name, srv.baseURL, "", model)
		return provider, fmt.Sprintf("development/local %s model=%s", srv.name, model), true
	}
	return nil, "", false
}

// pickModel prefers the client's requested model, then the configured
// preference order, then whatever the server listed first.
func pickModel(available []string, requested string, prefs []string) string {
	if requested != "" {
		for _, m := range available {
			if m == requested || strings.HasPrefix(m, requested) {
				return m
			}
		}
	}
	for _, pref := range prefs {
		pref = strings.TrimSpace(pref)
		if pref == "" {
			continue
		}
		for _, m := range available {
			if strings.HasPrefix(m, pref) {
				return m
			}
		}
	}
	return available[0]
}

func (s *Selector) listOllamaModels(ctx context.Context, baseURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", normalizeBaseURL(baseURL)+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.probe.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags HTTP %d", resp.StatusCode)
	}
	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

func (s *Selector) listOpenAIModels(ctx context.Context, baseURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", normalizeBaseURL(baseURL)+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.probe.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("models HTTP %d", resp.StatusCode)
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(body.Data))
	for _, m := range body.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// meteredProvider forwards usage events to the billing recorder as they
// stream through.
type meteredProvider struct {
	Provider
	record UsageRecorder
}

func (m *meteredProvider) StreamTurn(ctx context.Context, req TurnRequest, emit func(Event)) (*Turn, error) {
	return m.Provider.StreamTurn(ctx, req, func(ev Event) {
		if ev.Type == EventUsage && ev.Usage != nil {
			m.record(m.Provider.Name(), *ev.Usage)
		}
		emit(ev)
	})
}
