package anonymize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// EndpointPath is the fixed path the service exposes.
const EndpointPath = "/anonymize"

const maxErrorBody = 64 * 1024

// Anonymizer is anything that can answer an AnonymizationRequest. The HTTP
// Client and the local masking engine both satisfy it.
type Anonymizer interface {
	Anonymize(ctx context.Context, req AnonymizationRequest) (string, error)
}

// Client talks to a remote anonymization service.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     logrus.FieldLogger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each call with a context deadline, leaving the
// *http.Client untouched. Zero means no client-side timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) { c.logger = logger }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Anonymize issues a single POST to the service and returns the anonymized
// text verbatim. It never retries.
func (c *Client) Anonymize(ctx context.Context, req AnonymizationRequest) (string, error) {
	if req.NamesList == nil {
		req.NamesList = []string{}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndpointPath, bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Debug("Failed to close response body")
		}
	}()

	c.logger.WithFields(logrus.Fields{
		"status": resp.StatusCode,
		"url":    httpReq.URL.String(),
	}).Debug("Anonymize response received")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &ServerError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	var out struct {
		Anonymized *string `json:"anonymized"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Anonymized == nil {
		return "", fmt.Errorf("%w: missing \"anonymized\" field", ErrMalformedResponse)
	}
	return *out.Anonymized, nil
}

// errorMessage pulls a human message out of an error body. It understands
// {"error": ...}, {"detail": ...} and {"message": ...}, and falls back to the
// body itself when it is short plain text.
func errorMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range []string{"error", "detail", "message"} {
			if msg, ok := fields[key].(string); ok && msg != "" {
				return msg
			}
		}
		return ""
	}

	if strings.HasPrefix(trimmed, "<") || len(trimmed) > 512 {
		return ""
	}
	return trimmed
}
