package uconnect

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// TransportOptions tunes the HTTP execution layer.
type TransportOptions struct {
	Timeout          time.Duration
	DisableTLSVerify bool
	MaxRetries       uint64
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
}

// DefaultTransportOptions are used when the host supplies nothing.
func DefaultTransportOptions() TransportOptions {
	return TransportOptions{
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// Response is a raw upstream response. The transport never interprets
// payload semantics.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport executes HTTP requests against a brand deployment. It injects
// the brand headers, applies bounded exponential-backoff retry to network
// errors and 5xx responses, and surfaces 4xx immediately so the session
// manager can react to 401/403.
type Transport struct {
	httpClient *http.Client
	logger     *zap.Logger
	opts       TransportOptions
	// headers are sent with every request for this brand deployment.
	headers map[string]string
}

// NewTransport builds a transport for one endpoint configuration. TLS
// verification may be disabled for brands with non-standard certificate
// chains.
func NewTransport(cfg EndpointConfig, opts TransportOptions, logger *zap.Logger) *Transport {
	if opts.Timeout == 0 {
		opts = DefaultTransportOptions()
	}

	httpTransport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.DisableTLSVerify {
		httpTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		logger.Warn("TLS verification disabled", zap.String("endpoint", cfg.String()))
	}

	return &Transport{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: httpTransport,
		},
		logger: logger,
		opts:   opts,
		headers: map[string]string{
			"x-api-key":           cfg.APIKey,
			"locale":              cfg.Locale,
			"x-originator-type":   "web",
			"x-clientapp-name":    "CWP",
			"x-clientapp-version": "1.0",
			"content-type":        "application/json",
		},
	}
}

// Do executes one request with retry. Per-request headers override the brand
// defaults. The returned response always has a 2xx status; everything else
// comes back as a TransportError.
func (t *Transport) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error) {
	var resp *Response

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.opts.InitialBackoff
	bo.MaxInterval = t.opts.MaxBackoff

	operation := func() error {
		r, err := t.doOnce(ctx, method, url, headers, body)
		if err != nil {
			var te *TransportError
			if errors.As(err, &te) && !te.Retryable() {
				return backoff.Permanent(err)
			}
			t.logger.Debug("Request failed, will retry",
				zap.String("method", method),
				zap.String("url", url),
				zap.Error(err))
			return err
		}
		resp = r
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, t.opts.MaxRetries), ctx))
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Err
		}
		return nil, err
	}
	return resp, nil
}

func (t *Transport) doOnce(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, classifyNetError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Kind: TransportConnection, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Kind: TransportHTTPStatus, Status: resp.StatusCode}
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func classifyNetError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Kind: TransportTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Kind: TransportTimeout, Err: err}
	}
	return &TransportError{Kind: TransportConnection, Err: err}
}
