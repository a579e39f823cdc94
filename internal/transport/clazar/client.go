// Package clazar is the HTTP client for the Clazar marketplace metering API:
// token authentication plus per-contract usage submission.
package clazar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meterd/internal/domain"
)

const (
	authPath     = "/authenticate/"
	meteringPath = "/metering/"
)

// Config holds connection settings for the metering API.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client submits metering payloads. It is not safe for concurrent use while
// Authenticate is in flight; the pipeline authenticates once per run.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger

	accessToken string
}

// New creates a metering API client. Call Authenticate before Submit unless a
// pre-issued token is set via SetToken.
func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// SetToken installs a pre-issued access token, bypassing Authenticate.
func (c *Client) SetToken(token string) { c.accessToken = token }

type authRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type authResponse struct {
	AccessToken string `json:"access_token"`
}

// Authenticate exchanges client credentials for an access token.
func (c *Client) Authenticate(ctx context.Context) error {
	body, err := json.Marshal(authRequest{ClientID: c.clientID, ClientSecret: c.clientSecret})
	if err != nil {
		return fmt.Errorf("encode auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+authPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("authenticate: status %d: %s", resp.StatusCode, data)
	}

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("parse auth response: %w", err)
	}
	if parsed.AccessToken == "" {
		return fmt.Errorf("authenticate: empty access token")
	}

	c.accessToken = parsed.AccessToken
	c.logger.Info("authenticated with metering API")
	return nil
}

// resultItem is one element of the metering response. The API reports
// per-item failures inside a 200 response.
type resultItem struct {
	ID      string   `json:"id,omitempty"`
	Status  string   `json:"status,omitempty"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

type meteringResponse struct {
	Results []resultItem `json:"results"`
}

// Submit posts one contract's payload. Transport failures and non-200
// statuses return plain errors; a 200 response carrying a failed item returns
// a *domain.SubmissionError so callers can record the API's own diagnostics.
func (c *Client) Submit(ctx context.Context, payload domain.MeteringPayload) error {
	if c.accessToken == "" {
		return fmt.Errorf("submit: not authenticated")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode metering payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+meteringPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build metering request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit metering: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("submit metering: status %d: %s", resp.StatusCode, data)
	}

	var parsed meteringResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("parse metering response: %w", err)
	}

	for _, item := range parsed.Results {
		// An item with a code, a non-success status, or any errors is a
		// failure even inside a 200 response. Code may be absent on
		// errors-only items.
		if item.Code == "" && len(item.Errors) == 0 && (item.Status == "" || item.Status == "success") {
			continue
		}
		code := item.Code
		if code == "" {
			code = "API_ERROR"
		}
		message := item.Message
		if message == "" && item.Status != "" && item.Status != "success" {
			message = fmt.Sprintf("metering item rejected with status %q", item.Status)
		}
		return &domain.SubmissionError{
			Code:    code,
			Message: message,
			Errors:  item.Errors,
		}
	}
	return nil
}
