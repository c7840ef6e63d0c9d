package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/labelmint/mintflow/executors"
	"github.com/labelmint/mintflow/internal/tlsutil"
)

// CallerConfig tunes the outbound HTTP caller.
type CallerConfig struct {
	// Timeout is the default per-request deadline; a request's own
	// timeout takes precedence
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// RPS and Burst shape the outbound request rate; RPS <= 0 disables
	// rate limiting
	RPS   float64 `json:"rps" yaml:"rps"`
	Burst int     `json:"burst" yaml:"burst"`
	// Breaker tunes the per-host circuit breakers
	Breaker BreakerConfig `json:"breaker" yaml:"breaker"`
}

// DefaultCallerConfig returns the caller tuning used when the config
// file does not override it.
func DefaultCallerConfig() CallerConfig {
	return CallerConfig{
		Timeout: 30 * time.Second,
		RPS:     10,
		Burst:   20,
		Breaker: DefaultBreakerConfig(),
	}
}

// Caller is the production HTTP collaborator behind integration and
// http_request nodes. Every call passes the shared rate limiter and the
// target host's circuit breaker before going out; request bodies are
// JSON-encoded and response bodies JSON-decoded when possible.
type Caller struct {
	client   *http.Client
	limiter  *rate.Limiter
	breakers *breakerSet
	logger   *zap.Logger
}

var _ executors.HTTPCaller = (*Caller)(nil)

// NewCaller builds a Caller over a hardened HTTP client.
func NewCaller(config CallerConfig, logger *zap.Logger) *Caller {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http_caller"))

	var limiter *rate.Limiter
	if config.RPS > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RPS), burst)
	}

	return &Caller{
		client:   tlsutil.SecureHTTPClient(config.Timeout),
		limiter:  limiter,
		breakers: newBreakerSet(config.Breaker, logger),
		logger:   logger,
	}
}

// BreakerStates reports the circuit state per upstream host, for
// operational inspection.
func (c *Caller) BreakerStates() map[string]BreakerState {
	return c.breakers.states()
}

func (c *Caller) Call(ctx context.Context, req executors.CallRequest) (executors.CallResponse, error) {
	target, err := url.Parse(req.URL)
	if err != nil {
		return executors.CallResponse{}, fmt.Errorf("parse url: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return executors.CallResponse{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	breaker := c.breakers.get(target.Host)
	if err := breaker.Allow(); err != nil {
		return executors.CallResponse{}, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return executors.CallResponse{}, err
	}

	started := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		breaker.RecordFailure()
		return executors.CallResponse{}, fmt.Errorf("%s %s: %w", httpReq.Method, req.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		breaker.RecordFailure()
		return executors.CallResponse{}, fmt.Errorf("read response body: %w", err)
	}

	// Upstream 5xx counts against the breaker; a 4xx means the upstream
	// is alive and rejecting this particular request.
	if resp.StatusCode >= 500 {
		breaker.RecordFailure()
	} else {
		breaker.RecordSuccess()
	}

	c.logger.Debug("outbound call",
		zap.String("method", httpReq.Method),
		zap.String("url", req.URL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(started)),
	)

	return executors.CallResponse{
		Status:  resp.StatusCode,
		Headers: flattenHeaders(resp.Header),
		Body:    decodeBody(raw),
	}, nil
}

func (c *Caller) buildRequest(ctx context.Context, req executors.CallRequest) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	encoded := false
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
		encoded = true
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}
	if encoded && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if err := applyAuth(httpReq, req.Auth, time.Now()); err != nil {
		return nil, err
	}
	return httpReq, nil
}

// decodeBody parses JSON response bodies and falls back to the raw text
// for everything else.
func decodeBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		return decoded
	}
	return string(raw)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name := range h {
		out[name] = h.Get(name)
	}
	return out
}
