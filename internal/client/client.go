// Package client talks to a netchess server: a fasthttp REST client for
// match operations and a websocket watcher for the event stream.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/netchess/pkg/matchdto"
)

// HeaderProvider injects per-request headers.
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// APIError is a non-2xx reply. Domain and State are set when the server
// returned its JSON error envelope.
type APIError struct {
	Status int
	Domain *matchdto.DomainError
	State  *matchdto.State
	Body   string
}

func (e *APIError) Error() string {
	if e.Domain != nil {
		return fmt.Sprintf("%s (status %d): %s", e.Domain.Code, e.Status, e.Domain.Message)
	}
	return fmt.Sprintf("netchess api error: status=%d body=%s", e.Status, truncate(e.Body, 512))
}

// Code returns the domain error code, or "".
func (e *APIError) Code() string {
	if e.Domain == nil {
		return ""
	}
	return e.Domain.Code
}

// ErrorCode extracts the domain error code from err, or "".
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code()
	}
	return ""
}

func matchPath(id string, parts ...string) string {
	p := "/api/matches/" + url.PathEscape(strings.TrimSpace(id))
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (c *Client) CreateMatch(ctx context.Context, req matchdto.CreateMatchRequest) (*matchdto.CreateMatchResponse, error) {
	var resp matchdto.CreateMatchResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/matches", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Join(ctx context.Context, matchID string, req matchdto.JoinRequest) (*matchdto.JoinResponse, error) {
	var resp matchdto.JoinResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, matchPath(matchID, "join"), req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) State(ctx context.Context, matchID string) (*matchdto.State, error) {
	var st matchdto.State
	if err := c.doJSON(ctx, fasthttp.MethodGet, matchPath(matchID), nil, &st, true); err != nil {
		return nil, err
	}
	return &st, nil
}

// List returns local matches, or every instance's when cluster is set and
// the server has a live index.
func (c *Client) List(ctx context.Context, cluster bool) ([]matchdto.Summary, error) {
	path := "/api/matches"
	if cluster {
		path += "?scope=cluster"
	}
	var resp matchdto.ListResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

// Move submits a move; req names it by squares or by SAN.
func (c *Client) Move(ctx context.Context, matchID string, req matchdto.MoveRequest) (*matchdto.MoveResponse, error) {
	var resp matchdto.MoveResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, matchPath(matchID, "moves"), req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) LegalMoves(ctx context.Context, matchID, from string) ([]string, error) {
	var resp matchdto.LegalMovesResponse
	path := matchPath(matchID, "legal") + "?from=" + url.QueryEscape(from)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.To, nil
}

// Action runs one of undo, reset, resign, leave, pause, resume or
// draw/offer.
func (c *Client) Action(ctx context.Context, matchID, action, playerID string) (*matchdto.State, error) {
	var resp matchdto.Reply
	if err := c.doJSON(ctx, fasthttp.MethodPost, matchPath(matchID, action), matchdto.ActionRequest{PlayerID: playerID}, &resp, false); err != nil {
		return nil, err
	}
	return resp.State, nil
}

func (c *Client) Undo(ctx context.Context, matchID, playerID string) (*matchdto.State, error) {
	return c.Action(ctx, matchID, "undo", playerID)
}

func (c *Client) Reset(ctx context.Context, matchID, playerID string) (*matchdto.State, error) {
	return c.Action(ctx, matchID, "reset", playerID)
}

func (c *Client) Resign(ctx context.Context, matchID, playerID string) (*matchdto.State, error) {
	return c.Action(ctx, matchID, "resign", playerID)
}

func (c *Client) Leave(ctx context.Context, matchID, playerID string) (*matchdto.State, error) {
	return c.Action(ctx, matchID, "leave", playerID)
}

func (c *Client) OfferDraw(ctx context.Context, matchID, playerID string) (*matchdto.State, error) {
	return c.Action(ctx, matchID, "draw/offer", playerID)
}

func (c *Client) RespondDraw(ctx context.Context, matchID, playerID string, accept bool) (*matchdto.State, error) {
	var resp matchdto.Reply
	req := matchdto.DrawResponseRequest{PlayerID: playerID, Accept: accept}
	if err := c.doJSON(ctx, fasthttp.MethodPost, matchPath(matchID, "draw/respond"), req, &resp, false); err != nil {
		return nil, err
	}
	return resp.State, nil
}

func (c *Client) PGN(ctx context.Context, matchID string) (string, error) {
	body, err := c.doRaw(ctx, fasthttp.MethodGet, matchPath(matchID, "pgn"), nil, true)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) BoardPNG(ctx context.Context, matchID string, flip bool) ([]byte, error) {
	path := matchPath(matchID, "board.png")
	if flip {
		path += "?flip=1"
	}
	return c.doRaw(ctx, fasthttp.MethodGet, path, nil, true)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	var payload []byte
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = raw
	}
	body, err := c.doRaw(ctx, method, path, payload, retry)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// doRaw sends payload and returns the response body. Only transport
// failures and 5xx replies are retried, and only when retry is set.
func (c *Client) doRaw(ctx context.Context, method, path string, payload []byte, retry bool) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	if payload != nil {
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				return append([]byte(nil), resp.Body()...), nil
			}
			lastErr = decodeAPIError(status, resp.Body())
			if !shouldRetryStatus(status) {
				return nil, lastErr
			}
		}
		if attempt == attempts {
			break
		}
		if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return nil, lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return nil, lastErr
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Body: string(body)}
	var envelope struct {
		Error *matchdto.DomainError `json:"error"`
		State *matchdto.State       `json:"state"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Domain = envelope.Error
		apiErr.State = envelope.State
	}
	return apiErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
