// Package client queries a running apidiag query server.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"

	apihttp "github.com/GriffinCanCode/api-diagnostics/internal/api/http"
	"github.com/GriffinCanCode/api-diagnostics/internal/domain/logrecord"
)

// ErrUnavailable means the server could not be reached
var ErrUnavailable = errors.New("query server unavailable")

// StatusError is a non-2xx reply from the server
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("query server returned %d", e.Code)
	}
	return fmt.Sprintf("query server returned %d: %s", e.Code, e.Message)
}

// Config tunes the client
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultConfig suits a server on the same machine
func DefaultConfig() Config {
	return Config{
		Timeout:    10 * time.Second,
		MaxRetries: 2,
		MinWait:    100 * time.Millisecond,
		MaxWait:    2 * time.Second,
	}
}

// Client wraps resty for the query API
type Client struct {
	resty *resty.Client
}

// New creates a client for the server at baseURL, e.g. http://127.0.0.1:8765
func New(baseURL string, cfg Config) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}

	r := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.MinWait).
		SetRetryMaxWaitTime(cfg.MaxWait).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "apidiag-cli").
		SetJSONMarshaler(sonic.ConfigStd.Marshal).
		SetJSONUnmarshaler(sonic.ConfigStd.Unmarshal).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			var raw *http.Response
			ctx := context.Background()
			if resp != nil {
				raw = resp.RawResponse
				if resp.Request != nil {
					ctx = resp.Request.Context()
				}
			}
			retry, _ := retryablehttp.DefaultRetryPolicy(ctx, raw, err)
			return retry
		})

	return &Client{resty: r}, nil
}

// Correlation fetches every record for one correlation id
func (c *Client) Correlation(ctx context.Context, id string) ([]logrecord.Record, error) {
	return c.records(ctx, "/v1/logs/"+url.PathEscape(id), nil)
}

// StatusRange fetches records with low <= status <= high
func (c *Client) StatusRange(ctx context.Context, low, high int) ([]logrecord.Record, error) {
	return c.records(ctx, "/v1/logs", map[string]string{
		"status_low":  strconv.Itoa(low),
		"status_high": strconv.Itoa(high),
	})
}

// Errors fetches records of an error class, "4xx" or "5xx"
func (c *Client) Errors(ctx context.Context, class string) ([]logrecord.Record, error) {
	if class == "" {
		class = "all"
	}
	return c.records(ctx, "/v1/errors/"+url.PathEscape(class), nil)
}

// Recent fetches records from the last d
func (c *Client) Recent(ctx context.Context, d time.Duration) ([]logrecord.Record, error) {
	return c.records(ctx, "/v1/recent", map[string]string{"within": d.String()})
}

// Query evaluates a CEL filter on the server
func (c *Client) Query(ctx context.Context, filter string) ([]logrecord.Record, error) {
	return c.records(ctx, "/v1/query", map[string]string{"filter": filter})
}

// Health checks that the server answers
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.resty.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return &StatusError{Code: resp.StatusCode()}
	}
	return nil
}

func (c *Client) records(ctx context.Context, path string, query map[string]string) ([]logrecord.Record, error) {
	var (
		out  apihttp.LogsResponse
		fail apihttp.ErrorResponse
	)
	resp, err := c.resty.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(&out).
		SetError(&fail).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode(), Message: fail.Error}
	}
	if out.Records == nil {
		out.Records = []logrecord.Record{}
	}
	return out.Records, nil
}
