package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the Valyu deep-search API, which backs the patent search,
// patent analysis and web search tools.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

const (
	SearchTypeProprietary = "proprietary"
	SearchTypeWeb         = "web"

	// PatentsDataset is the USPTO index hosted by Valyu.
	PatentsDataset = "valyu/valyu-uspto"
)

type Request struct {
	Query              string   `json:"query"`
	SearchType         string   `json:"search_type"`
	IncludedSources    []string `json:"included_sources,omitempty"`
	MaxNumResults      int      `json:"max_num_results,omitempty"`
	RelevanceThreshold float64  `json:"relevance_threshold,omitempty"`
}

type Result struct {
	Title          string                 `json:"title"`
	URL            string                 `json:"url"`
	Content        string                 `json:"content"`
	Source         string                 `json:"source"`
	RelevanceScore float64                `json:"relevance_score"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

type Response struct {
	Success              bool     `json:"success"`
	Error                string   `json:"error,omitempty"`
	TxID                 string   `json:"tx_id"`
	Results              []Result `json:"results"`
	TotalDeductionDollar float64  `json:"total_deduction_dollars"`
}

func (c *Client) Search(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("search is not configured: VALYU_API_KEY is not set")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/deepsearch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	if !out.Success && out.Error != "" {
		return nil, fmt.Errorf("search rejected: %s", out.Error)
	}
	return &out, nil
}
