package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type authKey struct{}

// WithAuthorization carries the caller's Authorization header to upstream calls.
func WithAuthorization(ctx context.Context, header string) context.Context {
	if header == "" {
		return ctx
	}
	return context.WithValue(ctx, authKey{}, header)
}

func authorizationFrom(ctx context.Context) string {
	header, _ := ctx.Value(authKey{}).(string)
	return header
}

// statusError reports a non-2xx upstream answer.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream responded %d: %s", e.Status, e.Body)
}

// Observer records the outcome and latency of upstream calls.
type Observer interface {
	ObserveUpstream(service string, err error, duration time.Duration)
}

type base struct {
	name     string
	baseURL  string
	http     *http.Client
	timeout  time.Duration
	observer Observer
}

func newBase(name, baseURL string, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return base{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Observe attaches a metrics observer.
func (b *base) Observe(o Observer) {
	b.observer = o
}

// getJSON issues a bounded GET and decodes the body into dest.
func (b base) getJSON(ctx context.Context, path string, dest interface{}) (err error) {
	if b.observer != nil {
		start := time.Now()
		defer func() { b.observer.ObserveUpstream(b.name, err, time.Since(start)) }()
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if auth := authorizationFrom(ctx); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
