// Package client is a typed HTTP client for the hipnotes API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "http://localhost:3000"

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserHeader changes the header that carries the caller identity.
func WithUserHeader(name string) ClientOption {
	return func(c *Client) {
		c.userHeader = name
	}
}

// Client calls the notes API on behalf of one user.
type Client struct {
	userID     string
	userHeader string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client acting as userID. An empty userID sends no
// identity header, so the server's default identity applies.
func NewClient(userID string, opts ...ClientOption) *Client {
	c := &Client{
		userID:     userID,
		userHeader: "X-User-Id",
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	OwnerID   string    `json:"ownerId"`
	Secret    *string   `json:"secret,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateNoteRequest struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Secret  *string `json:"secret,omitempty"`
}

// UpdateNoteRequest changes only the fields that are set.
type UpdateNoteRequest struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
	Secret  *string `json:"secret,omitempty"`
}

// ListOptions filters and pages List. Zero values use server defaults.
type ListOptions struct {
	Page   int
	Limit  int
	Search string
	// Sort is a field name, optionally prefixed with "-" for descending.
	Sort string
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type NoteList struct {
	Data       []Note     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Issue is one field-level validation problem.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is the error envelope returned by the server.
type APIError struct {
	StatusCode int     `json:"statusCode"`
	Status     string  `json:"error"`
	Message    string  `json:"message"`
	Details    []Issue `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("notes API error (status %d): %s", e.StatusCode, e.Message)
	for _, d := range e.Details {
		msg += fmt.Sprintf("; %s: %s", d.Field, d.Message)
	}
	return msg
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

// IsForbidden reports whether err is a 403 from the API.
func IsForbidden(err error) bool {
	return statusOf(err) == http.StatusForbidden
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// CreateNote creates a note owned by the client's user.
func (c *Client) CreateNote(ctx context.Context, req *CreateNoteRequest) (*Note, error) {
	var note Note
	if err := c.do(ctx, http.MethodPost, "/notes", req, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// GetNote fetches one note.
func (c *Client) GetNote(ctx context.Context, id string) (*Note, error) {
	var note Note
	if err := c.do(ctx, http.MethodGet, "/notes/"+url.PathEscape(id), nil, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// ListNotes lists the user's notes.
func (c *Client) ListNotes(ctx context.Context, opts *ListOptions) (*NoteList, error) {
	path := "/notes"
	if q := opts.query(); q != "" {
		path += "?" + q
	}
	var list NoteList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// UpdateNote applies a partial update.
func (c *Client) UpdateNote(ctx context.Context, id string, req *UpdateNoteRequest) (*Note, error) {
	var note Note
	if err := c.do(ctx, http.MethodPatch, "/notes/"+url.PathEscape(id), req, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// DeleteNote removes a note.
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/notes/"+url.PathEscape(id), nil, nil)
}

func (o *ListOptions) query() string {
	if o == nil {
		return ""
	}
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	if o.Sort != "" {
		q.Set("sort", o.Sort)
	}
	return q.Encode()
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		httpReq.Header.Set(c.userHeader, c.userID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.StatusCode == 0 {
			return &APIError{
				StatusCode: resp.StatusCode,
				Status:     http.StatusText(resp.StatusCode),
				Message:    strings.TrimSpace(string(respBody)),
			}
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
