package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-wargame/internal/domain"
	"github.com/valyala/fasthttp"
)

// HTTPRelay talks to a generic JSON relay: POST stores a record, GET returns the envelope.
// The URL is consulted as-is on every call.
type HTTPRelay struct {
	url  string
	http *fasthttp.Client

	username string
	password string

	defaultTimeout time.Duration
}

type HTTPOption func(*HTTPRelay)

func WithTimeout(d time.Duration) HTTPOption {
	return func(r *HTTPRelay) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// WithBasicAuth attaches Basic credentials to both verbs when username is non-empty.
func WithBasicAuth(username, password string) HTTPOption {
	return func(r *HTTPRelay) {
		r.username = strings.TrimSpace(username)
		r.password = password
	}
}

func NewHTTPRelay(rawURL string, opts ...HTTPOption) *HTTPRelay {
	r := &HTTPRelay{
		url:            strings.TrimSpace(rawURL),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *HTTPRelay) Post(ctx context.Context, rec domain.TurnRecord) error {
	_, err := r.do(ctx, fasthttp.MethodPost, rec)
	return err
}

func (r *HTTPRelay) Fetch(ctx context.Context) (json.RawMessage, error) {
	body, err := r.do(ctx, fasthttp.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(env.Data) == 0 || strings.TrimSpace(string(env.Data)) == "null" {
		return nil, nil
	}
	return env.Data, nil
}

func (r *HTTPRelay) do(ctx context.Context, method string, in any) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(r.url)
	req.Header.Set("Accept", "application/json")
	if r.username != "" {
		token := base64.StdEncoding.EncodeToString([]byte(r.username + ":" + r.password))
		req.Header.Set("Authorization", "Basic "+token)
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	if err := r.http.DoDeadline(req, resp, r.computeDeadline(ctx)); err != nil {
		return nil, fmt.Errorf("broker request failed: %w", err)
	}
	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrRelayStatus, status, truncate(string(resp.Body()), 256))
	}
	// resp is released on return
	return append([]byte(nil), resp.Body()...), nil
}

func (r *HTTPRelay) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(r.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
