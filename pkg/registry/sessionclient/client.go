// Package sessionclient talks to a session registry served by httpapi. A
// Client is a session.Backend for Managers running away from the registry
// process, and a session.Admin for account pages.
package sessionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/registry"
	"github.com/dmitrymomot/sessionkit/pkg/registry/httpapi"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

var (
	// ErrRequest indicates the registry could not be reached
	ErrRequest = errors.New("sessionclient.request_failed")

	// ErrUnexpectedResponse indicates a failure status or an unreadable body
	ErrUnexpectedResponse = errors.New("sessionclient.unexpected_response")
)

// known maps error codes returned by the API back to sentinels.
var known = map[string]error{
	session.ErrForbidden.Error():       session.ErrForbidden,
	session.ErrSessionNotFound.Error(): session.ErrSessionNotFound,
	registry.ErrInvalidRequest.Error(): registry.ErrInvalidRequest,
	httpapi.ErrUnauthenticated.Error(): httpapi.ErrUnauthenticated,
}

// Client is an HTTP client of the session registry API.
type Client struct {
	baseURL string
	http    *http.Client
}

var (
	_ session.Backend = (*Client)(nil)
	_ session.Admin   = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client with a 10 second timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// New creates a Client for the API mounted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LogoutURL is the endpoint unload beacons should target.
func (c *Client) LogoutURL() string {
	return c.baseURL + "/sessions/logout"
}

func (c *Client) Register(ctx context.Context, req session.RegisterRequest) (session.Registration, error) {
	var out session.Registration
	err := c.do(ctx, http.MethodPost, "/sessions", nil, req, &out)
	return out, err
}

func (c *Client) Heartbeat(ctx context.Context, token string) (session.HeartbeatResult, error) {
	var out session.HeartbeatResult
	err := c.do(ctx, http.MethodPost, "/sessions/heartbeat", nil, httpapi.TokenRequest{Token: token}, &out)
	return out, err
}

func (c *Client) Logout(ctx context.Context, token string, reason session.Reason) (session.LogoutResult, error) {
	var out session.LogoutResult
	err := c.do(ctx, http.MethodPost, "/sessions/logout", nil, httpapi.TokenRequest{Token: token, Reason: reason}, &out)
	return out, err
}

func (c *Client) Revoke(ctx context.Context, actor session.Actor, req session.RevokeRequest) (int, error) {
	var out httpapi.RevokeResponse
	err := c.do(ctx, http.MethodPost, "/sessions/revoke", &actor, req, &out)
	return out.RevokedCount, err
}

func (c *Client) ListSessions(ctx context.Context, actor session.Actor, userID string) ([]session.Summary, error) {
	var out httpapi.ListResponse
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/sessions", &actor, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// do sends in as JSON and decodes the response into out. A non nil actor is
// sent in the actor headers.
func (c *Client) do(ctx context.Context, method, path string, actor *session.Actor, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return errors.Join(ErrRequest, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &body)
	if err != nil {
		return errors.Join(ErrRequest, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		req.Header.Set(httpapi.HeaderActorID, actor.UserID)
		req.Header.Set(httpapi.HeaderActorAdmin, strconv.FormatBool(actor.Admin))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Join(ErrRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr httpapi.Error
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if sentinel, ok := known[apiErr.Error]; ok {
			return sentinel
		}
		return errors.Join(ErrUnexpectedResponse, fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(ErrUnexpectedResponse, err)
	}
	return nil
}
