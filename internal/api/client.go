package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// StatusError is returned when the service answered with a non-2xx status.
// Message carries the server-provided error string when one was present.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("service returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("service returned %d", e.Code)
}

// Client talks to the remote banking service. Authentication is carried by
// the session cookie the jar picks up at login; callers never see credentials
// after that.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
}

// NewClient creates a Client with its own cookie jar.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout, Jar: jar},
		logger:     logger,
		tracer:     tracer,
		meter:      meter,
	}, nil
}

// CheckSession asks the service whether the ambient cookie still identifies
// an authenticated user.
func (c *Client) CheckSession(ctx context.Context) (*Identity, error) {
	var out checkSessionResponse
	if err := c.do(ctx, "check_session", http.MethodGet, "/api/check-session", nil, &out); err != nil {
		return nil, err
	}
	if !out.Authenticated {
		return nil, nil
	}
	return &Identity{
		UserID:      out.UserID,
		Username:    out.Username,
		DisplayName: out.Username,
	}, nil
}

// Login submits credentials. On success the session cookie lands in the jar
// and every later call carries it.
func (c *Client) Login(ctx context.Context, username, password string) (*Identity, error) {
	var out loginResponse
	if err := c.do(ctx, "login", http.MethodPost, "/login", loginRequest{Username: username, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout tells the service to drop the session. Best effort: local state is
// cleared by the caller regardless of the outcome.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, "/api/logout", nil, nil)
}

// ListAccounts fetches the full account list for the current session.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var out accountsResponse
	if err := c.do(ctx, "list_accounts", http.MethodGet, "/api/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// ListTransactions fetches up to limit most-recent transactions for one
// account, newest first.
func (c *Client) ListTransactions(ctx context.Context, accountID int64, limit int) ([]Transaction, error) {
	path := fmt.Sprintf("/api/accounts/%d/transactions?limit=%d", accountID, limit)
	var out transactionsResponse
	if err := c.do(ctx, "list_transactions", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Transactions == nil {
		out.Transactions = []Transaction{}
	}
	return out.Transactions, nil
}

// Suggestions fetches the quick-reply strings the assistant recommends.
func (c *Client) Suggestions(ctx context.Context) ([]string, error) {
	var out suggestionsResponse
	if err := c.do(ctx, "chat_suggestions", http.MethodGet, "/api/chat/suggestions", nil, &out); err != nil {
		return nil, err
	}
	return out.Suggestions, nil
}

// SendMessage posts one user message and returns the assistant's reply.
func (c *Client) SendMessage(ctx context.Context, message string) (*ChatReply, error) {
	var out ChatReply
	if err := c.do(ctx, "chat_send", http.MethodPost, "/api/chat", chatRequest{Message: message}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do issues one request against the service and decodes the JSON response
// into out (which may be nil). Non-2xx statuses become *StatusError.
func (c *Client) do(ctx context.Context, name, method, path string, in, out any) error {
	ctx, span := c.tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	requestID := uuid.NewString()

	var body io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "call", name, "request_id", requestID, "error", err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.recordDuration(ctx, time.Since(start))
	c.logger.Info("request completed", "call", name, "request_id", requestID, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		_ = json.Unmarshal(respBody, &apiErr)
		return &StatusError{Code: resp.StatusCode, Message: apiErr.Error}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) recordDuration(ctx context.Context, d time.Duration) {
	histogram, err := c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err == nil {
		histogram.Record(ctx, float64(d.Milliseconds()))
	}
}
