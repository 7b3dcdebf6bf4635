package keyexchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	httpclient "github.com/astro-web3/oauthgate/pkg/http"
	"github.com/astro-web3/oauthgate/pkg/logger"
	"github.com/astro-web3/oauthgate/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// HeaderAPIKey carries the key alongside the JSON body.
const HeaderAPIKey = "x-dna-api-key"

// ErrNotConfigured is returned when no verification endpoint is set.
var ErrNotConfigured = errors.New("API Key Verification URL not configured")

// TransportError means the endpoint could not be reached or did not answer
// in time.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError means the endpoint answered with anything but 200.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api key verification failed with status %d", e.StatusCode)
}

// Message is the reason phrase reported to the caller.
func (e *StatusError) Message() string {
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return e.Status
}

type exchangeRequest struct {
	APIKey string `json:"apiKey"`
}

type exchangeResponse struct {
	Token string `json:"token"`
}

// Client trades API keys for signed tokens at a remote endpoint.
type Client struct {
	url  string
	http *httpclient.Client
}

// NewClient builds a client for url. An empty url is allowed; Exchange then
// fails with ErrNotConfigured. Retries are always disabled.
func NewClient(url string, opts httpclient.Options) *Client {
	opts.RetryCount = 0
	return &Client{
		url:  strings.TrimSpace(url),
		http: httpclient.New(opts),
	}
}

func (c *Client) Exchange(ctx context.Context, apiKey string) (string, error) {
	if c.url == "" {
		return "", ErrNotConfigured
	}

	ctx, span := tracer.Start(ctx, "infra.keyexchange.Exchange")
	defer span.End()

	resp, err := c.http.Post(ctx, c.url,
		httpclient.WithBody(exchangeRequest{APIKey: apiKey}),
		httpclient.WithHeader(HeaderAPIKey, apiKey),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "api key exchange request failed", slog.String("error", err.Error()))
		return "", &TransportError{Err: err}
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
	if resp.StatusCode() != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status())
		return "", &StatusError{StatusCode: resp.StatusCode(), Status: resp.Status()}
	}

	return parseToken(resp.Body()), nil
}

// parseToken accepts {"token": "..."}, a JSON string, or the bare token.
func parseToken(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	switch body[0] {
	case '{':
		var out exchangeResponse
		if err := json.Unmarshal(body, &out); err == nil && out.Token != "" {
			return out.Token
		}
	case '"':
		var s string
		if err := json.Unmarshal(body, &s); err == nil {
			return s
		}
	}
	return string(body)
}
