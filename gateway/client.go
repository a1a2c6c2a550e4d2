package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/amonks/timekeep/tracking"
)

// DefaultTimeout bounds a single request/response call.
const DefaultTimeout = 10 * time.Second

// Client calls the tracking backend RPCs.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the given address or URL.
func NewClient(addr string) *Client {
	return &Client{baseURL: NormalizeBaseURL(addr), client: &http.Client{Timeout: DefaultTimeout}}
}

// NormalizeBaseURL turns "host:port" or a URL into a base URL without a trailing slash.
func NormalizeBaseURL(addr string) string {
	baseURL := strings.TrimRight(strings.TrimSpace(addr), "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return baseURL
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StartTimer starts a timer and returns the backend-assigned entry ID.
func (c *Client) StartTimer(ctx context.Context, req StartRequest) (string, error) {
	var response startResponse
	if err := c.post(ctx, "start timer", "/timers/start", req, &response); err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", &tracking.TransportError{Op: "start timer", Err: errors.New("response missing id")}
	}
	return response.ID, nil
}

// StopTimer stops a single timer.
func (c *Client) StopTimer(ctx context.Context, entryID string, subjectType tracking.SubjectType) error {
	return c.post(ctx, "stop timer", "/timers/stop", stopRequest{ID: entryID, SubjectType: subjectType}, &emptyResponse{})
}

// ActiveTimers lists the user's active timers.
func (c *Client) ActiveTimers(ctx context.Context, userID string) (ActiveTimers, error) {
	var response ActiveTimers
	if err := c.post(ctx, "list active timers", "/timers/active", userRequest{UserID: userID}, &response); err != nil {
		return ActiveTimers{}, err
	}
	return response, nil
}

// StopAllActiveTimers stops every active timer for the user in one call.
func (c *Client) StopAllActiveTimers(ctx context.Context, userID string) error {
	return c.post(ctx, "stop all timers", "/timers/stop-all", userRequest{UserID: userID}, &emptyResponse{})
}

// AddManualTime records time without a timer.
func (c *Client) AddManualTime(ctx context.Context, entry tracking.ManualEntry) error {
	return c.post(ctx, "add manual time", "/entries/manual", entry, &emptyResponse{})
}

// DeleteTimeEntry removes a time entry.
func (c *Client) DeleteTimeEntry(ctx context.Context, id string, subjectType tracking.SubjectType) error {
	return c.post(ctx, "delete time entry", "/entries/delete", deleteRequest{ID: id, SubjectType: subjectType}, &emptyResponse{})
}

func (c *Client) post(ctx context.Context, op, path string, payload any, dest any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return &tracking.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return &tracking.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readErrorResponse(op, resp)
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return &tracking.TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func readErrorResponse(op string, resp *http.Response) error {
	message := resp.Status
	var payload map[string]string
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&payload); err == nil {
		if value, ok := payload["error"]; ok {
			message = value
		}
	}
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return &tracking.ValidationError{Message: message}
	}
	return &tracking.TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(message)}
}

type startResponse struct {
	ID string `json:"id"`
}

type stopRequest struct {
	ID          string               `json:"id"`
	SubjectType tracking.SubjectType `json:"subject_type"`
}

type deleteRequest struct {
	ID          string               `json:"id"`
	SubjectType tracking.SubjectType `json:"subject_type"`
}

type userRequest struct {
	UserID string `json:"user_id"`
}

type emptyResponse struct{}
