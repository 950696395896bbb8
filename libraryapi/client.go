package libraryapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/bookshelf-sync/telemetry"
)

const (
	// HeaderRequestID carries a fresh UUID per request for server-side correlation.
	HeaderRequestID = "X-Request-ID"

	defaultUserAgent = "bookshelf-sync"
	maxResponseBytes = 4 << 20
	contentTypeJSON  = "application/json"
	msgUndecodable   = "undecodable response body"
)

// Client talks to the library REST API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	observer   telemetry.Observer
}

// New creates a client for the API rooted at baseURL, e.g. "http://localhost:5000/api".
func New(baseURL string, options ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(parsed.String(), "/"),
		httpClient: http.DefaultClient,
		userAgent:  defaultUserAgent,
	}

	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one round trip.
type request struct {
	operation string
	method    string
	path      string
	query     url.Values
	body      any
}

// send performs the round trip and hands a 2xx body to decode. Everything from sending to
// decoding is observed as one request.
func (c *Client) send(ctx context.Context, req request, decode func(body []byte) error) (err error) {
	requestID := uuid.NewString()

	ctx, obs := c.startObservation(ctx, req.operation, req.method, req.path, requestID)

	statusCode := 0
	defer func() {
		obs.finish(ctx, statusCode, err)
	}()

	// A deadline from WithTimeout counts as a network failure; the caller's own cancellation
	// is passed through.
	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := c.newHTTPRequest(reqCtx, req, requestID)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("libraryapi %s: %w", req.operation, ctx.Err())
		}

		return c.newError(req, KindNetwork, 0, requestID, "", nil, err)
	}
	defer resp.Body.Close()

	statusCode = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("libraryapi %s: %w", req.operation, ctx.Err())
		}

		return c.newError(req, KindNetwork, statusCode, requestID, "", nil, err)
	}

	if statusCode < 200 || statusCode > 299 {
		message, fields := parseErrorBody(body)
		if message == "" {
			message = http.StatusText(statusCode)
		}

		return c.newError(req, kindForStatus(statusCode), statusCode, requestID, message, fields, nil)
	}

	if decode == nil {
		return nil
	}

	if err := decode(body); err != nil {
		return c.newError(req, KindServer, statusCode, requestID, msgUndecodable, nil, err)
	}

	return nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req request, requestID string) (*http.Request, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("libraryapi %s: encode request: %w", req.operation, err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("libraryapi %s: build request: %w", req.operation, err)
	}

	httpReq.Header.Set("Accept", contentTypeJSON)
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", contentTypeJSON)
	}

	return httpReq, nil
}

func (c *Client) newError(
	req request,
	kind ErrorKind,
	statusCode int,
	requestID string,
	message string,
	fields map[string]string,
	cause error,
) *Error {
	return &Error{
		Kind:       kind,
		Operation:  req.operation,
		Method:     req.method,
		Path:       req.path,
		StatusCode: statusCode,
		Message:    message,
		Fields:     fields,
		RequestID:  requestID,
		Err:        cause,
	}
}

// decodeEnvelope decodes the payload of a response into out and returns its pagination, if any.
// Bare payloads (not wrapped in {success, data}) are accepted.
func decodeEnvelope(body []byte, out any) (*paginationDTO, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty response body")
	}

	if trimmed[0] == '[' {
		return nil, json.Unmarshal(trimmed, out)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, err
	}

	if env.Success != nil && !*env.Success {
		return nil, fmt.Errorf("unsuccessful response: %s", env.Message)
	}

	if err := json.Unmarshal(env.payload(trimmed), out); err != nil {
		return nil, err
	}

	return env.Pagination, nil
}

func pathFor(prefix string, segments ...string) string {
	var b strings.Builder
	b.WriteString(prefix)

	for _, segment := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(segment))
	}

	return b.String()
}
