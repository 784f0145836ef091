package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/adi-253/parley/backend/internal/config"
	"github.com/adi-253/parley/backend/internal/models"
	"github.com/adi-253/parley/backend/internal/store"
	"github.com/google/uuid"
)

// Client is a history store backed by a Supabase "messages" table through the REST API.
// It uses the service role key for backend operations with elevated privileges.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	clock      *store.Clock
}

// messageRow mirrors a row of the messages table.
type messageRow struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
	Body   string `json:"body"`
	TS     int64  `json:"ts"`
}

// NewClient creates a new Supabase client with the given configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: cfg.SupabaseURL,
		apiKey:  cfg.SupabaseKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		clock: store.NewClock(),
	}
}

// doRequest executes an HTTP request to the Supabase REST API.
// It automatically adds authentication headers and handles the response.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Add Supabase authentication headers
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("supabase error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// Append inserts a new message row.
func (c *Client) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	msg.ID = uuid.New().String()
	msg.Timestamp = c.clock.Next()

	row := messageRow{
		ID:     msg.ID,
		Sender: msg.Sender,
		Body:   msg.Body,
		TS:     msg.Timestamp.UnixNano(),
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "messages", row); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Recent retrieves the newest messages, newest first.
func (c *Client) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	if limit <= 0 {
		return messages, nil
	}

	endpoint := "messages?select=id,sender,body,ts&order=ts.desc&limit=" + strconv.Itoa(limit)
	respBody, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var rows []messageRow
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}

	for _, row := range rows {
		messages = append(messages, models.Message{
			ID:        row.ID,
			Sender:    row.Sender,
			Body:      row.Body,
			Timestamp: time.Unix(0, row.TS).UTC(),
		})
	}
	return messages, nil
}

// Empty asks for a single row and reports whether none came back.
func (c *Client) Empty(ctx context.Context) (bool, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "messages?select=id&limit=1", nil)
	if err != nil {
		return false, err
	}

	var rows []messageRow
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return false, fmt.Errorf("failed to parse messages: %w", err)
	}
	return len(rows) == 0, nil
}

// ObserveLatest advances the clock past the newest stored row so timestamps
// keep increasing across restarts.
func (c *Client) ObserveLatest(ctx context.Context) error {
	latest, err := c.Recent(ctx, 1)
	if err != nil {
		return err
	}
	if len(latest) == 1 {
		c.clock.Observe(latest[0].Timestamp)
	}
	return nil
}
