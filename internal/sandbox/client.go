package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Runner provisions and drives ephemeral remote execution environments. The
// code-execution tool depends on this interface so tests can substitute it.
type Runner interface {
	CreateSandbox(ctx context.Context) (string, error)
	RunCode(ctx context.Context, sandboxID, code string) (*ExecResult, error)
	DeleteSandbox(ctx context.Context, sandboxID string) error
}

type ExecResult struct {
	Stdout   string `json:"result"`
	ExitCode int    `json:"exitCode"`
}

// Client implements Runner against the hosted sandbox-execution API.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *Client) CreateSandbox(ctx context.Context) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("code execution is not configured: SANDBOX_API_KEY is not set")
	}
	payload := map[string]string{"language": "python"}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "POST", "/sandbox", payload, &out); err != nil {
		return "", fmt.Errorf("failed to create sandbox: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("sandbox API returned no sandbox id")
	}
	return out.ID, nil
}

func (c *Client) RunCode(ctx context.Context, sandboxID, code string) (*ExecResult, error) {
	payload := map[string]string{"code": code}
	var out ExecResult
	if err := c.do(ctx, "POST", "/sandbox/"+sandboxID+"/toolbox/process/code-run", payload, &out); err != nil {
		return nil, fmt.Errorf("code execution failed: %w", err)
	}
	return &out, nil
}

func (c *Client) DeleteSandbox(ctx context.Context, sandboxID string) error {
	if err := c.do(ctx, "DELETE", "/sandbox/"+sandboxID, nil, nil); err != nil {
		return fmt.Errorf("failed to delete sandbox %s: %w", sandboxID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(raw))
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}
