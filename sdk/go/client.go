package leadlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadline/internal/domain"
)

type (
	Lead         = domain.Lead
	Conversation = domain.Conversation
	Message      = domain.Message
	Simulation   = domain.Simulation
	AIStatus     = domain.AIStatus
	KanbanPage   = domain.KanbanPage
	KanbanCounts = domain.KanbanCounts
)

// CreateLeadRequest is the payload of POST /v1/contacts.
type CreateLeadRequest struct {
	ChannelID  string         `json:"channel_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	ExternalID string         `json:"external_id,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	Email      string         `json:"email,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// Client is a minimal Leadline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

const genericErrorMessage = "unknown error"

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d message=%s", e.StatusCode, e.Message)
}

// Kanban fetches one page of the board. The server pages every stage at once.
func (c *Client) Kanban(ctx context.Context, page, pageSize int) (KanbanPage, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("pageSize", fmt.Sprint(pageSize))
	var resp KanbanPage
	err := c.do(ctx, http.MethodGet, "v1/contacts/kanban?"+q.Encode(), nil, &resp)
	return resp, err
}

// KanbanCounts fetches per-stage totals.
func (c *Client) KanbanCounts(ctx context.Context) (KanbanCounts, error) {
	var resp KanbanCounts
	err := c.do(ctx, http.MethodGet, "v1/contacts/kanban/counts", nil, &resp)
	return resp, err
}

// UpdateLeadStatus moves a lead to another stage.
func (c *Client) UpdateLeadStatus(ctx context.Context, id, status string) (Lead, error) {
	var resp Lead
	endpoint := fmt.Sprintf("v1/contacts/%s/status", url.PathEscape(id))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// SetAIStatus pauses or resumes automated handling for a phone number.
func (c *Client) SetAIStatus(ctx context.Context, phone string, active bool) (AIStatus, error) {
	var resp AIStatus
	body := map[string]any{
		"phone":  phone,
		"active": active,
	}
	err := c.do(ctx, http.MethodPatch, "v1/conversations/ai-status", body, &resp)
	return resp, err
}

// Lead fetches a single lead.
func (c *Client) Lead(ctx context.Context, id string) (Lead, error) {
	var resp Lead
	err := c.do(ctx, http.MethodGet, "v1/contacts/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateLead creates a lead.
func (c *Client) CreateLead(ctx context.Context, in CreateLeadRequest) (Lead, error) {
	var resp Lead
	err := c.do(ctx, http.MethodPost, "v1/contacts", in, &resp)
	return resp, err
}

// LeadConversations returns the conversation history of a lead.
func (c *Client) LeadConversations(ctx context.Context, id string) ([]Conversation, error) {
	var resp []Conversation
	endpoint := fmt.Sprintf("v1/contacts/%s/conversations", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// LeadSimulations returns the simulations of a lead, newest first.
func (c *Client) LeadSimulations(ctx context.Context, id string) ([]Simulation, error) {
	var resp []Simulation
	endpoint := fmt.Sprintf("v1/contacts/%s/simulations", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// errorMessage pulls a human readable message out of an error body. Both the
// flat {"message"} shape and the {"error":{"message"}} envelope are accepted.
func errorMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return genericErrorMessage
	}
	switch {
	case envelope.Message != "":
		return envelope.Message
	case envelope.Error != nil && envelope.Error.Message != "":
		return envelope.Error.Message
	default:
		return genericErrorMessage
	}
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
