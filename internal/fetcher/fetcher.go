// Copyright 2025 James Ross
package fetcher

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dclexplorer/consumer-processor/internal/breaker"
	"github.com/dclexplorer/consumer-processor/internal/config"
	"go.uber.org/zap"
)

// ErrorKind distinguishes timeout exhaustion from other network failures,
// per spec.md 4.1 "Failure mode".
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTimeout
	KindNetwork
	KindHTTPStatus
)

// FetchError is the error surfaced once the retry budget is exhausted.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "fetch failed"
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options configures a single Fetch call.
type Options struct {
	Method  string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration // per-attempt; falls back to the configured default
}

// Response is a drained, in-memory HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

func (r *Response) IsSuccess() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

var retryableStatuses = map[int]bool{
	408: true, 429: true, 500: true, 502: true, 503: true, 504: true,
}

// Fetcher is a retrying HTTP client with exponential backoff, jitter, and
// pooled keep-alive connections, grounded on the teacher's per-host
// circuit breaker shape (internal/breaker).
type Fetcher struct {
	cfg    config.Fetch
	client *http.Client
	log    *zap.Logger
	cb     *breaker.CircuitBreaker
}

func New(cfg config.Fetch, cbCfg config.CircuitBreaker, log *zap.Logger) *Fetcher {
	transport := &http.Transport{
		MaxConnsPerHost:     10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     60 * time.Second,
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
		},
		log: log,
		cb:  breaker.New("fetcher", cbCfg.Window, cbCfg.CooldownPeriod, cbCfg.FailureThreshold, cbCfg.MinSamples),
	}
}

// Fetch performs a retrying HTTP request per spec.md 4.1.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts Options) (*Response, error) {
	if !f.cb.Allow() {
		return nil, &FetchError{Kind: KindNetwork, Err: errors.New("circuit breaker open")}
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	perAttemptTimeout := opts.Timeout
	if perAttemptTimeout <= 0 {
		perAttemptTimeout = f.cfg.Timeout
	}

	attempts := f.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			d := f.backoffDelay(attempt)
			select {
			case <-ctx.Done():
				f.cb.Record(false)
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}

		resp, kind, status, err := f.doOnce(ctx, method, url, opts, perAttemptTimeout)
		if err == nil {
			f.cb.Record(true)
			return resp, nil
		}
		lastErr = err
		if kind == KindHTTPStatus && !retryableStatuses[status] {
			f.cb.Record(true) // a definitive, non-transient response is not a breaker failure
			return nil, &FetchError{Kind: kind, StatusCode: status, Err: err}
		}
		f.log.Debug("fetch attempt failed, retrying", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
	}
	f.cb.Record(false)
	kind := classifyErr(lastErr)
	return nil, &FetchError{Kind: kind, Err: lastErr}
}

func (f *Fetcher) doOnce(ctx context.Context, method, url string, opts Options, timeout time.Duration) (*Response, ErrorKind, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return nil, KindUnknown, 0, err
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, KindTimeout, 0, err
		}
		return nil, classifyErr(err), 0, err
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, KindNetwork, resp.StatusCode, readErr
	}

	if retryableStatuses[resp.StatusCode] {
		// body already drained above so the connection returns to the pool
		return nil, KindHTTPStatus, resp.StatusCode, errStatus(resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return nil, KindHTTPStatus, resp.StatusCode, errStatus(resp.StatusCode)
	}

	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}, KindUnknown, resp.StatusCode, nil
}

func (f *Fetcher) backoffDelay(attempt int) time.Duration {
	base := float64(f.cfg.InitialDelay)
	mult := f.cfg.BackoffMultiplier
	if mult <= 0 {
		mult = 2
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= mult
	}
	if d > float64(f.cfg.MaxDelay) {
		d = float64(f.cfg.MaxDelay)
	}
	jitter := d * 0.25 * rand.Float64()
	return time.Duration(d + jitter)
}

func errStatus(code int) error {
	return &statusError{code: code}
}

type statusError struct{ code int }

func (e *statusError) Error() string { return "http status " + itoa(e.code) }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func classifyErr(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such host"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "no route to host"),
		strings.Contains(msg, "temporary failure in name resolution"):
		return KindNetwork
	}
	return KindUnknown
}
