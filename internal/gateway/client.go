package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/warden-labs/warden/internal/keyring"
)

// ---------------------------------------------------------------------------
// HTTP provider base — credential rotation, pacing, bounded retry
// ---------------------------------------------------------------------------

// KeySource is the slice of the key manager the HTTP layer needs.
type KeySource interface {
	Acquire(service string) (string, error)
	ReportFailure(service, key string, kind keyring.FailureKind)
	ReportSuccess(service, key string)
}

const defaultMaxAttempts = 3

// httpClient issues authenticated JSON requests against one upstream
// provider. Transient failures rotate to the next credential inside a
// bounded attempt loop; quota and invalid-input failures surface at once.
type httpClient struct {
	name        string
	service     string
	baseURL     string
	keys        KeySource
	limiter     *rate.Limiter
	client      *http.Client
	log         zerolog.Logger
	maxAttempts int
}

func newHTTPClient(name, baseURL string, keys KeySource, rps float64, timeout time.Duration, log zerolog.Logger) *httpClient {
	if rps <= 0 {
		rps = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &httpClient{
		name:        name,
		service:     name,
		baseURL:     baseURL,
		keys:        keys,
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		client:      &http.Client{Timeout: timeout},
		log:         log,
		maxAttempts: defaultMaxAttempts,
	}
}

func (c *httpClient) getJSON(ctx context.Context, op, path string, query url.Values, dest any) error {
	return c.doJSON(ctx, op, http.MethodGet, path, query, nil, dest)
}

func (c *httpClient) postJSON(ctx context.Context, op, path string, body, dest any) error {
	return c.doJSON(ctx, op, http.MethodPost, path, nil, body, dest)
}

func (c *httpClient) doJSON(ctx context.Context, op, method, path string, query url.Values, body, dest any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &ProviderError{Provider: c.name, Op: op, Class: ClassInvalidInput, Err: err}
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		key, err := c.keys.Acquire(c.service)
		if err != nil {
			return &ProviderError{Provider: c.name, Op: op, Class: ClassUnavailable, Err: err}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return &ProviderError{Provider: c.name, Op: op, Class: ClassTransient, Err: err}
		}

		status, respBody, err := c.once(ctx, method, path, query, payload, key)
		if err != nil {
			// Network-level failure: short cooldown, rotate, keep going.
			c.keys.ReportFailure(c.service, key, keyring.FailureTransient)
			lastErr = &ProviderError{Provider: c.name, Op: op, Class: ClassTransient, Err: err}
			c.log.Debug().Str("component", "gateway").Str("provider", c.name).Str("op", op).
				Int("attempt", attempt).Err(err).Msg("gateway: request failed")
			continue
		}

		if status < 200 || status >= 300 {
			switch classifyStatus(status) {
			case ClassTransient:
				c.keys.ReportFailure(c.service, key, keyring.FailureTransient)
				lastErr = &ProviderError{Provider: c.name, Op: op, Class: ClassTransient, Status: status,
					Err: fmt.Errorf("upstream status %d", status)}
				continue
			case ClassQuota:
				c.keys.ReportFailure(c.service, key, keyring.FailureQuota)
				return &ProviderError{Provider: c.name, Op: op, Class: ClassQuota, Status: status,
					Err: fmt.Errorf("credential rejected with status %d", status)}
			default:
				return &ProviderError{Provider: c.name, Op: op, Class: ClassInvalidInput, Status: status,
					Err: fmt.Errorf("upstream status %d", status)}
			}
		}

		c.keys.ReportSuccess(c.service, key)
		if dest == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, dest); err != nil {
			lastErr = &ProviderError{Provider: c.name, Op: op, Class: ClassTransient,
				Err: fmt.Errorf("decode response: %w", err)}
			continue
		}
		return nil
	}
	return lastErr
}

func (c *httpClient) once(ctx context.Context, method, path string, query url.Values, payload []byte, key string) (int, []byte, error) {
	u := c.baseURL + path
	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	q.Set("key", key)
	u += "?" + q.Encode()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
