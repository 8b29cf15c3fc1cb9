// Package api is the client for the mailbox REST API.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mailto/internal/mailbox"
	"github.com/nhle/mailto/internal/model"
)

// ErrEmptyRequest is returned for a mutation that names no addresses.
var ErrEmptyRequest = errors.New("mutation request has no addresses")

// ErrReservedSegment is returned for a mutation whose addresses would be
// read by the server or a proxy as something other than an address: the
// reset keyword on its own, or a dot segment.
var ErrReservedSegment = errors.New("address is a reserved path segment")

// credentialParam is the query parameter carrying the session.
const credentialParam = "webathena"

// Client is a thin HTTP client for the v1 mailbox API. Every call carries
// the Webathena session and returns the user's full mailbox status. Calls
// are never retried.
type Client struct {
	baseURL    string
	session    *model.Session
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a client rooted at baseURL (e.g.
// https://mailto.mit.edu/api/v1) that authenticates with session.
func NewClient(baseURL string, session *model.Session, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Username returns the user whose mailboxes the client manages.
func (c *Client) Username() string {
	return c.session.Username()
}

// Status fetches the current mailbox listing.
func (c *Client) Status(ctx context.Context) (*model.Status, error) {
	return c.do(ctx, "status", http.MethodGet, c.Username())
}

// Apply replaces the active mailboxes with exactly the addresses in req.
func (c *Client) Apply(ctx context.Context, req mailbox.Request) (*model.Status, error) {
	if len(req) == 0 {
		return nil, ErrEmptyRequest
	}
	if err := checkSegments(req); err != nil {
		return nil, err
	}
	segments := append([]string{c.Username()}, req...)
	return c.do(ctx, "apply", http.MethodPut, segments...)
}

// checkSegments rejects requests that would not reach the update route.
func checkSegments(req mailbox.Request) error {
	if len(req) == 1 && strings.EqualFold(req[0], "reset") {
		return fmt.Errorf("%w: %q", ErrReservedSegment, req[0])
	}
	for _, addr := range req {
		if addr == "." || addr == ".." {
			return fmt.Errorf("%w: %q", ErrReservedSegment, addr)
		}
	}
	return nil
}

// Reset restores the default mailbox configuration.
func (c *Client) Reset(ctx context.Context) (*model.Status, error) {
	return c.do(ctx, "reset", http.MethodPut, c.Username(), "reset")
}

// endpoint joins path-escaped segments onto the base URL and attaches the
// session credential.
func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}

	q := url.Values{}
	q.Set(credentialParam, base64.StdEncoding.EncodeToString(c.session.Raw()))

	return c.baseURL + "/" + strings.Join(escaped, "/") + "?" + q.Encode()
}

// do performs a request and decodes the status it returns.
func (c *Client) do(
	ctx context.Context,
	op string,
	method string,
	segments ...string,
) (*model.Status, error) {
	path := "/" + strings.Join(segments, "/")

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(segments...), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("api request failed",
			zap.String("op", op), zap.String("method", method), zap.Error(err))
		return nil, &Error{Op: op, Method: method, Path: path, Err: err}
	}

	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	c.log.Debug("api request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if readErr != nil {
		return nil, &Error{Op: op, Method: method, Path: path, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("reading response body: %w", readErr)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Op:         op,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, resp.Status),
		}
	}

	var status model.Status
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, &Error{Op: op, Method: method, Path: path, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("decoding response: %w", err)}
	}
	mailbox.Normalize(&status)

	return &status, nil
}

// errorMessage extracts a short description from an error body.
func errorMessage(body []byte, fallback string) string {
	var structured struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &structured) == nil {
		if structured.Message != "" {
			return structured.Message
		}
		if structured.Error != "" {
			return structured.Error
		}
	}

	text := strings.TrimSpace(string(body))
	if text == "" || strings.HasPrefix(text, "<") {
		return fallback
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
