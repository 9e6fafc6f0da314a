package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"alertrelay/internal/config"
	"alertrelay/internal/constants"
	"alertrelay/internal/logger"
	"alertrelay/pkg/circuitbreaker"
	apperrors "alertrelay/pkg/errors"
	"alertrelay/pkg/metrics"
)

const maxErrorBody = 512

// StatusError is a collector answer outside the accepted statuses.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("collector returned status %d", e.Status)
	}
	return fmt.Sprintf("collector returned status %d: %s", e.Status, e.Body)
}

// client posts JSON documents to the collector. Requests are paced by an optional limiter
// and guarded by an optional circuit breaker.
type client struct {
	name    string
	http    *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.Wrapper
	logger  logger.Logger
}

func newClient(name string, httpClient *http.Client, cfg config.CollectorConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) *client {
	c := &client{name: name, http: httpClient, logger: log}
	if cfg.RateLimit.Enabled && cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}
	if cbCfg.Enabled {
		bc := circuitbreaker.FromSettings(name, cbCfg)
		// A rejected document says nothing about the collector's health.
		bc.IsSuccessful = func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Status < 500 && se.Status != http.StatusTooManyRequests
			}
			return err == nil
		}
		c.breaker = circuitbreaker.NewWrapper(bc)
	}
	return c
}

// post sends body to url. accept decides which statuses count as delivered.
// Every failure is returned as a DELIVERY error.
func (c *client) post(ctx context.Context, url string, body interface{}, accept func(status int) bool) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, apperrors.Wrap(fmt.Errorf("failed to marshal payload: %w", err), apperrors.ErrDelivery)
	}

	var status int
	send := func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}
		s, err := c.do(ctx, url, payload, accept)
		status = s
		return err
	}

	start := time.Now()
	if c.breaker != nil {
		err = c.breaker.Run(ctx, send)
	} else {
		err = send(ctx)
	}
	metrics.ObserveDelivery(c.name, deliveryStatus(err), time.Since(start))

	if err != nil {
		return status, apperrors.Wrap(err, apperrors.ErrDelivery.WithDetail("endpoint", c.name))
	}
	return status, nil
}

func (c *client) do(ctx context.Context, url string, payload []byte, accept func(status int) bool) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("collector request failed: %w", err)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)

	if !accept(resp.StatusCode) {
		return resp.StatusCode, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return resp.StatusCode, nil
}

func is2xx(status int) bool {
	return status >= constants.HTTPStatusOKMin && status < constants.HTTPStatusOKMax
}

func deliveryStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var se *StatusError
	if errors.As(err, &se) {
		return "rejected"
	}
	return "transport_error"
}
