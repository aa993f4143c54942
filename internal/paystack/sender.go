package paystack

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const maxResponseBody = 64 << 10

// Response is what the webhook endpoint answered.
type Response struct {
	Event    EventType
	Status   int
	Body     string
	Duration time.Duration
}

// Sender posts signed events to a webhook endpoint.
type Sender struct {
	url     string
	secret  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewSender creates a Sender that posts at most rps events per second. A
// non-positive rps disables pacing.
func NewSender(url, secret string, rps rate.Limit, logger *slog.Logger) *Sender {
	if rps <= 0 {
		rps = rate.Inf
	}
	return &Sender{
		url:     url,
		secret:  secret,
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rps, 1),
		logger:  logger,
	}
}

// Send posts one event body with a valid signature.
func (s *Sender) Send(ctx context.Context, body []byte) (Response, error) {
	if s.secret == "" {
		return Response{}, ErrMissingSecret
	}
	event, err := ParseEvent(body)
	if err != nil {
		return Response{}, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(s.secret, body))

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to post %s: %w", event.Event, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	out := Response{
		Event:    event.Event,
		Status:   resp.StatusCode,
		Body:     string(respBody),
		Duration: time.Since(start),
	}
	s.logger.Debug("webhook_sent",
		"event", event.Event,
		"reference", event.Reference(),
		"status", out.Status,
		"duration", out.Duration,
	)
	return out, nil
}

// Replay sends bodies in order and stops at the first transport error.
func (s *Sender) Replay(ctx context.Context, bodies [][]byte) ([]Response, error) {
	out := make([]Response, 0, len(bodies))
	for _, body := range bodies {
		resp, err := s.Send(ctx, body)
		if err != nil {
			return out, err
		}
		out = append(out, resp)
	}
	return out, nil
}
