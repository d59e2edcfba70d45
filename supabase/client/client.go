// Package client is a small Supabase client covering the PostgREST table API
// and the GoTrue password auth endpoints used by the hub.
package client

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

	"github.com/tidwall/gjson"

	"github.com/qkgalias/capstone-hub/internal/httputil"
)

const maxResponseBytes = 8 << 20

// Client is a Supabase REST API client. It is safe for concurrent use.
type Client struct {
	baseURL     string
	apiKey      string
	accessToken string
	httpClient  *http.Client
}

// Config holds client configuration.
type Config struct {
	URL    string
	APIKey string
	// HTTPClient overrides the transport. When nil a client with Timeout and
	// the retry/breaker transport is built.
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      RetryConfig
	Breaker    CircuitBreakerConfig
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: NewResilientTransport(nil, cfg.Retry, cfg.Breaker),
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// WithAccessToken returns a copy of c that authenticates as the signed-in
// user, so row level security scopes every query to that account.
func (c *Client) WithAccessToken(token string) *Client {
	cp := *c
	cp.accessToken = token
	return &cp
}

// From starts a query builder for a table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client: c,
		table:  table,
	}
}

// QueryBuilder builds PostgREST queries.
type QueryBuilder struct {
	client  *Client
	table   string
	columns string
	filters url.Values
	orders  []string
	limit   int
}

// Select specifies columns to select or return.
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = columns
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	if q.filters == nil {
		q.filters = url.Values{}
	}
	q.filters.Add(column, fmt.Sprintf("eq.%v", value))
	return q
}

// Order adds an ORDER BY term.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	return q.order(column, ascending, "")
}

// OrderNullsLast adds an ORDER BY term that places NULLs after all values.
func (q *QueryBuilder) OrderNullsLast(column string, ascending bool) *QueryBuilder {
	return q.order(column, ascending, "nullslast")
}

func (q *QueryBuilder) order(column string, ascending bool, nulls string) *QueryBuilder {
	term := column + ".desc"
	if ascending {
		term = column + ".asc"
	}
	if nulls != "" {
		term += "." + nulls
	}
	q.orders = append(q.orders, term)
	return q
}

// Limit sets the LIMIT.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

func (q *QueryBuilder) url(withSelect bool) string {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, q.table)

	params := url.Values{}
	for k, vs := range q.filters {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	if withSelect && q.columns != "" {
		params.Set("select", q.columns)
	}
	if len(q.orders) > 0 {
		params.Set("order", strings.Join(q.orders, ","))
	}
	if q.limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", q.limit))
	}
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	return reqURL
}

// Execute runs a SELECT.
func (q *QueryBuilder) Execute(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.url(true), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q.client.setHeaders(req)
	return q.client.do(req)
}

// ExecuteInsert inserts data and returns the stored representation.
func (q *QueryBuilder) ExecuteInsert(ctx context.Context, data any) (*Response, error) {
	return q.write(ctx, http.MethodPost, data)
}

// ExecuteUpdate patches every row matched by the filters.
func (q *QueryBuilder) ExecuteUpdate(ctx context.Context, data any) (*Response, error) {
	return q.write(ctx, http.MethodPatch, data)
}

// ExecuteDelete deletes every row matched by the filters.
func (q *QueryBuilder) ExecuteDelete(ctx context.Context) (*Response, error) {
	return q.write(ctx, http.MethodDelete, nil)
}

func (q *QueryBuilder) write(ctx context.Context, method string, data any) (*Response, error) {
	var body io.Reader
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal data: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.url(true), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(req)
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Prefer", "return=representation")

	return q.client.do(req)
}

// Response is a raw API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Err returns an *APIError when the response indicates failure.
func (r *Response) Err() error {
	if r.StatusCode < 400 {
		return nil
	}
	return parseError(r.Body, r.StatusCode)
}

// Rows reports how many rows a JSON array body holds.
func (r *Response) Rows() int {
	res := gjson.ParseBytes(r.Body)
	if !res.IsArray() {
		return 0
	}
	return len(res.Array())
}

// APIError is a failed Supabase call.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase error %d: %s", e.StatusCode, e.Message)
}

// UserMessage is the backend's own message, shown verbatim to the user.
func (e *APIError) UserMessage() string {
	return e.Message
}

// parseError extracts a message from the differently shaped PostgREST and
// GoTrue error bodies.
func parseError(body []byte, status int) *APIError {
	apiErr := &APIError{StatusCode: status}
	if gjson.ValidBytes(body) {
		doc := gjson.ParseBytes(body)
		for _, path := range []string{"message", "msg", "error_description", "error"} {
			if v := doc.Get(path); v.Type == gjson.String && v.String() != "" {
				apiErr.Message = v.String()
				break
			}
		}
		for _, path := range []string{"code", "error_code"} {
			if v := doc.Get(path); v.Exists() {
				apiErr.Code = v.String()
				break
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func (c *Client) setHeaders(req *http.Request) {
	token := c.apiKey
	if c.accessToken != "" {
		token = c.accessToken
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := httputil.ReadAllStrict(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}, nil
}
