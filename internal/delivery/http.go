package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"synapse.app/ingest/common/logger"
	"synapse.app/ingest/internal/metrics"
	"synapse.app/ingest/internal/model"
)

const ingestPath = "/api/v1/ingest"

type HTTPConfig struct {
	BaseURL       string
	Timeout       time.Duration
	Retry         RetryPolicy
	RatePerSecond float64 // 0 disables rate limiting
	Burst         int
	TraceHeader   string
	HTTPClient    *http.Client
}

// HTTPClient posts events as JSON to the ingestion endpoint. Network
// errors, 408, 429 and 5xx responses are retried under the retry policy;
// other 4xx responses fail immediately.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	retry       RetryPolicy
	limiter     *rate.Limiter
	traceHeader string
	logger      *slog.Logger
}

func NewHTTPClient(cfg HTTPConfig, log *slog.Logger) *HTTPClient {
	if log == nil {
		log = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &HTTPClient{
		endpoint:    strings.TrimSuffix(cfg.BaseURL, "/") + ingestPath,
		client:      client,
		retry:       cfg.Retry,
		limiter:     limiter,
		traceHeader: cfg.TraceHeader,
		logger:      log,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *HTTPClient) Deliver(ctx context.Context, event *model.Event) error {
	eventID := event.EventID.String()

	sc := logger.StartSpan(ctx, "delivery.deliver",
		attribute.String("event.id", eventID),
		attribute.String("event.type", string(event.EventType)),
	)
	defer sc.End()
	ctx = sc.Context()

	body, err := json.Marshal(event)
	if err != nil {
		derr := &DeliveryError{EventID: eventID, Message: "encoding event", Err: err}
		sc.RecordError(derr)
		return derr
	}

	maxAttempts := c.retry.attempts()
	var last *DeliveryError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			last = &DeliveryError{EventID: eventID, Attempts: attempt, Message: "rate limiter", Err: err}
			break
		}

		retryAfter, derr := c.post(ctx, eventID, body, sc.TraceID())
		if derr == nil {
			metrics.DeliveryAttempts.WithLabelValues(metrics.AttemptSucceeded).Inc()
			return nil
		}
		derr.Attempts = attempt
		last = derr

		if !derr.Retryable || attempt == maxAttempts || ctx.Err() != nil {
			metrics.DeliveryAttempts.WithLabelValues(metrics.AttemptFailed).Inc()
			break
		}
		metrics.DeliveryAttempts.WithLabelValues(metrics.AttemptRetried).Inc()

		wait := c.retry.Backoff(attempt)
		if retryAfter > wait {
			wait = retryAfter
		}
		c.logger.DebugContext(ctx, "retrying delivery", "event_id", eventID, "attempt", attempt, "wait", wait, "error", derr)
		if err := sleep(ctx, wait); err != nil {
			break
		}
	}

	sc.RecordError(last)
	return last
}

// post makes one request. It returns the server's Retry-After hint when present.
func (c *HTTPClient) post(ctx context.Context, eventID string, body []byte, traceID string) (time.Duration, *DeliveryError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, &DeliveryError{EventID: eventID, Message: "building request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.traceHeader != "" && traceID != "" {
		req.Header.Set(c.traceHeader, traceID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, &DeliveryError{EventID: eventID, Err: err, Retryable: ctx.Err() == nil}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return 0, nil
	}

	derr := &DeliveryError{
		EventID:    eventID,
		StatusCode: resp.StatusCode,
		Message:    responseMessage(respBody),
		Retryable:  retryableStatus(resp.StatusCode),
	}
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		derr.Err = fmt.Errorf("reading response: %w", readErr)
	}
	return retryAfter(resp.Header.Get("Retry-After")), derr
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

func responseMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return er.Error
	}
	return logger.Truncate(strings.TrimSpace(string(body)), 256)
}

// retryAfter parses a delay-seconds Retry-After value, capped at 30s.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		return 0
	}
	d := time.Duration(seconds) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
