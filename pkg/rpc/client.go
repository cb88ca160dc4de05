// Package rpc is the thin remote-procedure layer the realtime core consumes:
// exchanging the long-lived credential for a one-time connection ticket and
// fetching thread metadata on demand. Plain CRUD wrappers beyond what the
// event layer needs do not live here.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/loomworks/loom-go/pkg/platform"
)

const maxErrorBodyBytes int64 = 64 << 10

// Caller is the capability set the session and engine layers depend on.
// *Client implements it; tests substitute fakes.
type Caller interface {
	ExchangeTicket(ctx context.Context) (Ticket, error)
	GetThread(ctx context.Context, threadID string) (platform.Thread, error)
	ListParticipants(ctx context.Context, threadID string) ([]platform.Participant, error)
	ListArtifacts(ctx context.Context, threadID string) ([]platform.Artifact, error)
}

// Ticket is a short-lived credential used only to open the realtime socket.
type Ticket struct {
	Value     string    `json:"ticket"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Client talks to the Loom HTTP API with bearer authentication.
type Client struct {
	baseURL    *url.URL
	credential string
	httpClient *http.Client
}

// New creates a Client for the given base URL and long-lived credential.
// Scheme-less hosts get https:// prefixed for convenience.
func New(baseURL, credential string) (*Client, error) {
	raw := strings.TrimSpace(baseURL)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid platform url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("platform url has no host: %q", baseURL)
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	return &Client{
		baseURL:    parsed,
		credential: strings.TrimSpace(credential),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// SocketURL derives the realtime endpoint for a ticket. The URL carries only
// the one-time ticket, never the long-lived credential, so the credential
// cannot leak into logs or intermediary proxies.
func (c *Client) SocketURL(ticket Ticket) string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = path.Join(strings.TrimSuffix(c.baseURL.Path, "/"), "/rt/ws")
	q := u.Query()
	q.Set("ticket", ticket.Value)
	u.RawQuery = q.Encode()
	return u.String()
}

// ExchangeTicket trades the long-lived credential for a one-time connection
// ticket.
func (c *Client) ExchangeTicket(ctx context.Context) (Ticket, error) {
	var ticket Ticket
	err := c.call(ctx, http.MethodPost, "/rt/tickets", map[string]any{}, &ticket)
	if err != nil {
		return Ticket{}, fmt.Errorf("ticket exchange: %w", err)
	}
	if ticket.Value == "" {
		return Ticket{}, fmt.Errorf("ticket exchange: empty ticket in response")
	}
	if ticket.ExpiresAt.IsZero() {
		// Servers that omit expiresAt may still issue JWT tickets.
		if exp, ok := TicketExpiry(ticket.Value); ok {
			ticket.ExpiresAt = exp
		}
	}
	return ticket, nil
}

// GetThread fetches one thread's metadata.
func (c *Client) GetThread(ctx context.Context, threadID string) (platform.Thread, error) {
	var payload struct {
		Thread platform.Thread `json:"thread"`
	}
	if err := c.call(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID), nil, &payload); err != nil {
		return platform.Thread{}, err
	}
	return payload.Thread, nil
}

// ListParticipants fetches a thread's current participants.
func (c *Client) ListParticipants(ctx context.Context, threadID string) ([]platform.Participant, error) {
	var payload struct {
		Participants []platform.Participant `json:"participants"`
	}
	if err := c.call(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID)+"/participants", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Participants, nil
}

// ListArtifacts fetches a thread's artifacts, latest version per key.
func (c *Client) ListArtifacts(ctx context.Context, threadID string) ([]platform.Artifact, error) {
	var payload struct {
		Artifacts []platform.Artifact `json:"artifacts"`
	}
	if err := c.call(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID)+"/artifacts", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Artifacts, nil
}

func (c *Client) apiURL(p string) string {
	u := *c.baseURL
	u.Path = path.Join(strings.TrimSuffix(u.Path, "/"), "/api", p)
	return u.String()
}

func (c *Client) call(ctx context.Context, method, p string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL(p), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data := readBodyLimited(resp.Body, maxErrorBodyBytes)
		msg := formatErrorBody(data)
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// APIError is a non-2xx platform response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform request failed (%d): %s", e.Status, e.Message)
}

type errorEnvelope struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func readBodyLimited(r io.Reader, maxBytes int64) []byte {
	if r == nil || maxBytes <= 0 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(r, maxBytes))
	return data
}

func formatErrorBody(data []byte) string {
	if len(bytes.TrimSpace(data)) == 0 {
		return ""
	}
	var payload errorEnvelope
	if err := json.Unmarshal(data, &payload); err == nil {
		msg := strings.TrimSpace(payload.Message)
		if msg == "" {
			msg = strings.TrimSpace(payload.Error)
		}
		if msg != "" {
			if code := strings.TrimSpace(payload.Code); code != "" {
				return fmt.Sprintf("%s (%s)", msg, code)
			}
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}
