package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cinderella/internal/agent"
)

// Client calls the gateway over HTTP. The bot and the debate loop both use
// it; neither ever shells out to claude directly.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
	}
}

// Run posts the request to /v1/claude/run. The HTTP deadline is the run
// budget plus a grace period so the server's own timeout fires first.
func (c *Client) Run(ctx context.Context, req agent.RunRequest) (agent.RunResult, error) {
	if req.TimeoutSec <= 0 {
		req.TimeoutSec = agent.DefaultTimeoutSec
	}

	body, err := json.Marshal(req)
	if err != nil {
		return agent.RunResult{}, fmt.Errorf("gateway client: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(req.TimeoutSec+10)*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/claude/run", bytes.NewReader(body))
	if err != nil {
		return agent.RunResult{}, fmt.Errorf("gateway client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return agent.RunResult{}, fmt.Errorf("gateway client: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var payload errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr == nil && payload.Detail != nil {
			return agent.RunResult{}, fmt.Errorf("gateway client: status %d: %v", resp.StatusCode, payload.Detail)
		}
		return agent.RunResult{}, fmt.Errorf("gateway client: status %d", resp.StatusCode)
	}

	var res agent.RunResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return agent.RunResult{}, fmt.Errorf("gateway client: decode response: %w", err)
	}
	return res, nil
}
