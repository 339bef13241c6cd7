// Package backend submits signed orders, cancellations and claims to the
// execution service and normalizes its response envelope.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/walletlink/internal/domain"
)

const (
	placeOrderPath  = "/orders/place"
	cancelOrderPath = "/orders/cancel"
	claimPath       = "/claims"
)

// Config configures the execution service client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is the execution service client. It never retries.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend: %w: base url is required", domain.ErrConfiguration)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("backend: %w: api token is required", domain.ErrConfiguration)
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	return &Client{
		http:   client,
		logger: logger.With(slog.String("component", "backend")),
	}, nil
}

// envelope is the execution service response wrapper.
type envelope struct {
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    any             `json:"code,omitempty"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data,omitempty"`
	} `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e envelope) hasResult() bool {
	r := bytes.TrimSpace(e.Result)
	return len(r) > 0 && !bytes.Equal(r, []byte("null"))
}

// post sends body to path and returns the decoded envelope. Transport
// failures, error envelopes and empty envelopes come back as errors; an
// explicit success:false without an error is left to the caller.
func (c *Client) post(ctx context.Context, path string, body any) (envelope, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return envelope{}, &TransportError{Path: path, Err: err}
	}
	if !resp.IsSuccess() {
		return envelope{}, &TransportError{Path: path, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	if len(bytes.TrimSpace(resp.Body())) == 0 {
		return envelope{}, fmt.Errorf("backend: %s: %w", path, domain.ErrEmptyResult)
	}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return envelope{}, &TransportError{Path: path, StatusCode: resp.StatusCode(), Body: resp.String(), Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if env.Error != nil {
		return env, &ApplicationError{Path: path, Code: env.Error.Code, Message: env.Error.Message, Data: env.Error.Data}
	}
	if env.Message != "" && !(env.Success != nil && *env.Success) {
		return env, &ApplicationError{Path: path, Message: env.Message}
	}
	if env.Success == nil && !env.hasResult() {
		return env, fmt.Errorf("backend: %s: %w", path, domain.ErrEmptyResult)
	}
	return env, nil
}

func decodeResult(path string, env envelope, out any) error {
	if !env.hasResult() {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("backend: %s: decode result: %w", path, err)
	}
	return nil
}
