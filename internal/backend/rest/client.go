package rest

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

	"example.com/backstage/dairy/internal/backend"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Options configures a Client
type Options struct {
	URL          string
	AnonKey      string
	FunctionsURL string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client talks to a Supabase-compatible backend: PostgREST for tables and
// procedures, GoTrue for password auth and the functions gateway.
type Client struct {
	baseURL      string
	anonKey      string
	functionsURL string
	accessToken  string
	httpClient   *http.Client
}

// NewClient creates a new rest client
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	base := strings.TrimRight(opts.URL, "/")
	functions := strings.TrimRight(opts.FunctionsURL, "/")
	if functions == "" && base != "" {
		functions = base + "/functions/v1"
	}

	return &Client{
		baseURL:      base,
		anonKey:      opts.AnonKey,
		functionsURL: functions,
		httpClient:   httpClient,
	}
}

// WithAccessToken returns a copy that authenticates as the token holder
func (c *Client) WithAccessToken(token string) backend.Client {
	clone := *c
	clone.accessToken = token
	return &clone
}

func (c *Client) Configured() bool {
	return c.baseURL != "" && c.anonKey != ""
}

// Select reads rows from a table
func (c *Client) Select(ctx context.Context, table string, q backend.Query) (json.RawMessage, error) {
	if err := backend.ValidateIdentifier(table); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("select", "*")
	if err := applyFilters(params, q.Filters); err != nil {
		return nil, err
	}
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			if err := backend.ValidateIdentifier(o.Column); err != nil {
				return nil, err
			}
			dir := "asc"
			if o.Descending {
				dir = "desc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		params.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", q.Limit))
	}

	return c.do(ctx, http.MethodGet, c.restURL(table, params), nil, nil)
}

// Insert creates rows and returns them as stored
func (c *Client) Insert(ctx context.Context, table string, rows interface{}) (json.RawMessage, error) {
	if err := backend.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	headers := map[string]string{"Prefer": "return=representation"}
	return c.do(ctx, http.MethodPost, c.restURL(table, nil), rows, headers)
}

// Update patches every row matching filters
func (c *Client) Update(ctx context.Context, table string, filters []backend.Filter, values map[string]interface{}) (json.RawMessage, error) {
	if err := backend.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, errors.New("refusing to update without filters")
	}
	params := url.Values{}
	if err := applyFilters(params, filters); err != nil {
		return nil, err
	}
	headers := map[string]string{"Prefer": "return=representation"}
	return c.do(ctx, http.MethodPatch, c.restURL(table, params), values, headers)
}

// Delete removes every row matching filters
func (c *Client) Delete(ctx context.Context, table string, filters []backend.Filter) error {
	if err := backend.ValidateIdentifier(table); err != nil {
		return err
	}
	if len(filters) == 0 {
		return errors.New("refusing to delete without filters")
	}
	params := url.Values{}
	if err := applyFilters(params, filters); err != nil {
		return err
	}
	_, err := c.do(ctx, http.MethodDelete, c.restURL(table, params), nil, nil)
	return err
}

// RPC calls a database procedure with named parameters
func (c *Client) RPC(ctx context.Context, fn string, params map[string]interface{}) (json.RawMessage, error) {
	if err := backend.ValidateIdentifier(fn); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return c.do(ctx, http.MethodPost, c.restURL("rpc/"+fn, nil), params, nil)
}

// SignInWithPassword exchanges seller credentials for a session
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*backend.AuthSession, error) {
	body := map[string]string{"email": email, "password": password}
	raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/auth/v1/token?grant_type=password", body, nil)
	if err != nil {
		return nil, err
	}

	var session backend.AuthSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, errors.Wrap(err, "failed to decode auth session")
	}
	if session.AccessToken == "" {
		return nil, &backend.Error{Status: http.StatusUnauthorized, Message: "no access token in auth response"}
	}
	return &session, nil
}

// SignOut revokes the given access token
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	scoped := c.WithAccessToken(accessToken).(*Client)
	_, err := scoped.do(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil, nil)
	return err
}

// Invoke calls an HTTPS function by name
func (c *Client) Invoke(ctx context.Context, name string, body interface{}) (json.RawMessage, error) {
	if err := backend.ValidateIdentifier(name); err != nil {
		return nil, err
	}
	if c.functionsURL == "" {
		return nil, backend.ErrNotConfigured
	}
	return c.do(ctx, http.MethodPost, c.functionsURL+"/"+name, body, nil)
}

func (c *Client) restURL(path string, params url.Values) string {
	u := c.baseURL + "/rest/v1/" + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (c *Client) bearer() string {
	if c.accessToken != "" {
		return c.accessToken
	}
	return c.anonKey
}

func (c *Client) do(ctx context.Context, method, target string, body interface{}, headers map[string]string) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, req.URL.Path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	log.Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Backend request")

	if resp.StatusCode >= 300 {
		return nil, decodeError(resp.StatusCode, data)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage(`null`), nil
	}
	return json.RawMessage(data), nil
}

// decodeError maps both PostgREST ({code,message,details,hint}) and
// GoTrue ({error,error_description} or {msg}) error bodies.
func decodeError(status int, data []byte) error {
	var body struct {
		Code             interface{} `json:"code"`
		Message          string      `json:"message"`
		Details          string      `json:"details"`
		Hint             string      `json:"hint"`
		Error            string      `json:"error"`
		ErrorDescription string      `json:"error_description"`
		Msg              string      `json:"msg"`
	}
	be := &backend.Error{Status: status}
	if err := json.Unmarshal(data, &body); err != nil {
		be.Message = strings.TrimSpace(string(data))
		if be.Message == "" {
			be.Message = http.StatusText(status)
		}
		return be
	}

	if code, ok := body.Code.(string); ok {
		be.Code = code
	}
	be.Details = body.Details
	be.Hint = body.Hint
	switch {
	case body.Message != "":
		be.Message = body.Message
	case body.ErrorDescription != "":
		be.Message = body.ErrorDescription
	case body.Msg != "":
		be.Message = body.Msg
	case body.Error != "":
		be.Message = body.Error
	default:
		be.Message = http.StatusText(status)
	}
	return be
}
