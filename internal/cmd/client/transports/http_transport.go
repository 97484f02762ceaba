package transports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StatusError is a non-2xx answer from the controller.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// HTTPTransport implements FarmTransport over the REST gateway.
type HTTPTransport struct {
	baseURL func() string
	client  *http.Client
}

// NewHTTPTransport constructs a transport for the controller at baseURL.
// A nil client uses http.DefaultClient.
func NewHTTPTransport(baseURL func() string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{baseURL: baseURL, client: client}
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, q url.Values, in, out any) (int, error) {
	u := strings.TrimRight(t.baseURL(), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func clientPath(client, rest string) string {
	return "/v1/clients/" + url.PathEscape(client) + rest
}

func prefixQuery(prefix string) url.Values {
	if prefix == "" {
		return nil
	}
	return url.Values{"prefix": {prefix}}
}

// pendingPath spans every client when client is empty.
func pendingPath(client, rest string) string {
	if client == "" {
		return "/v1/pending" + rest
	}
	return clientPath(client, "/pending"+rest)
}

// Submit schedules an asynchronous invocation.
func (t *HTTPTransport) Submit(ctx context.Context, client string, req SubmitRequest) (Submitted, error) {
	req.Sync = false
	var out Submitted
	_, err := t.do(ctx, http.MethodPost, clientPath(client, "/invocations"), nil, req, &out)
	return out, err
}

// Invoke submits synchronously and waits for the response.
func (t *HTTPTransport) Invoke(ctx context.Context, client string, req SubmitRequest) (Response, error) {
	req.Sync = true
	var out Response
	_, err := t.do(ctx, http.MethodPost, clientPath(client, "/invocations"), nil, req, &out)
	return out, err
}

func (t *HTTPTransport) Count(ctx context.Context, client, prefix string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	_, err := t.do(ctx, http.MethodGet, pendingPath(client, "/count"), prefixQuery(prefix), nil, &out)
	return out.Count, err
}

func (t *HTTPTransport) List(ctx context.Context, client, prefix string) ([]Ref, error) {
	var out struct {
		Requests []Ref `json:"requests"`
	}
	_, err := t.do(ctx, http.MethodGet, pendingPath(client, ""), prefixQuery(prefix), nil, &out)
	return out.Requests, err
}

func (t *HTTPTransport) Cancel(ctx context.Context, client, prefix string) (int, error) {
	var out struct {
		Cancelled int `json:"cancelled"`
	}
	_, err := t.do(ctx, http.MethodPost, pendingPath(client, "/cancel"), prefixQuery(prefix), nil, &out)
	return out.Cancelled, err
}

// Completed returns journal entries as raw JSON objects.
func (t *HTTPTransport) Completed(ctx context.Context, client, prefix string, limit int) ([]json.RawMessage, error) {
	q := url.Values{}
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Entries []json.RawMessage `json:"entries"`
	}
	_, err := t.do(ctx, http.MethodGet, clientPath(client, "/completed"), q, nil, &out)
	return out.Entries, err
}

func (t *HTTPTransport) SetPriority(ctx context.Context, client string, priority *int) (Client, error) {
	var out Client
	_, err := t.do(ctx, http.MethodPut, clientPath(client, ""), nil, map[string]*int{"priority": priority}, &out)
	return out, err
}

func (t *HTTPTransport) GetClient(ctx context.Context, client string) (Client, error) {
	var out Client
	_, err := t.do(ctx, http.MethodGet, clientPath(client, ""), nil, nil, &out)
	return out, err
}

func (t *HTTPTransport) Stats(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	_, err := t.do(ctx, http.MethodGet, "/v1/stats", nil, nil, &out)
	return out, err
}

// Poll long-polls for work. It returns nil when the wait elapsed empty.
func (t *HTTPTransport) Poll(ctx context.Context, processorID string, attrs map[string]any, wait time.Duration) (*Assignment, error) {
	body := map[string]any{"attributes": attrs, "wait_ms": wait.Milliseconds()}
	var out Assignment
	code, err := t.do(ctx, http.MethodPost, "/v1/processors/"+url.PathEscape(processorID)+"/poll", nil, body, &out)
	if err != nil {
		return nil, err
	}
	if code == http.StatusNoContent {
		return nil, nil
	}
	return &out, nil
}

func (t *HTTPTransport) Complete(ctx context.Context, processorID, token string, value any, errMsg string) error {
	body := map[string]any{"token": token, "value": value, "error": errMsg}
	_, err := t.do(ctx, http.MethodPost, "/v1/processors/"+url.PathEscape(processorID)+"/complete", nil, body, nil)
	return err
}

var _ FarmTransport = (*HTTPTransport)(nil)
