package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hermeslab/hermes/internal/logger"
)

// Client calls the external word-proposal endpoint. The endpoint receives a
// window of recently processed messages plus the current protected
// vocabulary as an advisory, and answers with replace/special proposals.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a proposal client bound to one endpoint.
func NewClient(endpoint, apiKey string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.WithComponent("discovery_client"),
	}
}

// ProposalRequest is the request body sent to the endpoint.
type ProposalRequest struct {
	Messages            []string `json:"messages"`
	ProtectedVocabulary []string `json:"protected_vocabulary"`
}

// ProposalResponse is the endpoint's answer; both arrays may be empty.
type ProposalResponse struct {
	ProposedReplace []ReplaceProposal `json:"proposed_replace"`
	ProposedSpecial []SpecialProposal `json:"proposed_special"`
}

// Propose submits the message window and returns the raw (unreconciled)
// proposals. An empty response is not an error.
func (c *Client) Propose(ctx context.Context, req *ProposalRequest) (*ProposalResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proposal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call proposal endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("proposal endpoint returned error",
			slog.Int("status_code", resp.StatusCode))
		return nil, fmt.Errorf("proposal endpoint returned status %d", resp.StatusCode)
	}

	var out ProposalResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode proposal response: %w", err)
	}

	c.logger.Debug("received proposals",
		slog.Int("replace", len(out.ProposedReplace)),
		slog.Int("special", len(out.ProposedSpecial)))
	return &out, nil
}
