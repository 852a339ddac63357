// Package client talks to the storefront HTTP API. It implements the catalog
// fetcher and the cart and wishlist backends used by the storefront package,
// translating API error responses back into apperr kinds.
package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/catalog"
	"storefront/internal/payment"
	"storefront/internal/util"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1"

// Options configures a Client.
type Options struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	Retries   int
	Codec     catalog.Codec
	Transport http.RoundTripper
}

// Client is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	token   string
	retries int
	backoff time.Duration
	codec   catalog.Codec
	logger  *zap.Logger
}

// New creates a client for the API rooted at opts.BaseURL.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Codec.PriceCeiling.IsZero() {
		opts.Codec = catalog.NewCodec(catalog.DefaultPriceCeiling)
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	return &Client{
		base:    base,
		http:    &http.Client{Transport: transport, Timeout: opts.Timeout},
		token:   opts.Token,
		retries: opts.Retries,
		backoff: 500 * time.Millisecond,
		codec:   opts.Codec,
		logger:  util.GetLogger(),
	}, nil
}

// Codec is the query-string codec used for catalog requests.
func (c *Client) Codec() catalog.Codec {
	return c.codec
}

// apiError is the body the API writes for every failed request.
type apiError struct {
	Error            string `json:"error"`
	Details          string `json:"details,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`
	Refunded         bool   `json:"refunded,omitempty"`
	Retryable        bool   `json:"retryable,omitempty"`
}

// call is one API request. GETs are retried on DataUnavailable; nothing
// else is, since a repeated write could apply twice.
type call struct {
	method  string
	path    string
	query   string
	body    any
	headers map[string]string
	out     any
}

func (c *Client) do(ctx context.Context, op string, r call) error {
	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
	}

	attempts := 1
	if r.method == http.MethodGet {
		attempts += c.retries
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			c.logger.Debug("Retrying request", zap.String("op", op), zap.Int("attempt", i+1), zap.Error(err))
			select {
			case <-ctx.Done():
				return apperr.Unavailable(op, ctx.Err())
			case <-time.After(time.Duration(i) * c.backoff):
			}
		}
		err = c.once(ctx, op, r, payload)
		if err == nil || !apperr.Retryable(err) {
			return err
		}
	}
	return err
}

func (c *Client) once(ctx context.Context, op string, r call, payload []byte) error {
	u := *c.base
	u.Path += apiPrefix + r.path
	u.RawQuery = r.query

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Unavailable(op, err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return apperr.Unavailable(op, err)
	}
	if resp.StatusCode >= 400 {
		return decodeError(op, resp.StatusCode, data)
	}
	if r.out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, r.out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// readBody reads a response body, undoing gzip or brotli encoding.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(reader)
}

// decodeError maps an API error response to the matching apperr kind.
func decodeError(op string, status int, data []byte) error {
	var body apiError
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
		if body.Error == "" {
			body.Error = http.StatusText(status)
		}
	}
	msg := body.Error
	if body.Details != "" {
		msg += ": " + body.Details
	}

	switch {
	case body.PaymentReference != "":
		return &apperr.CheckoutError{
			PaymentReference: body.PaymentReference,
			Refunded:         body.Refunded,
			Cause:            fmt.Errorf("%s: %s", op, msg),
		}
	case status == http.StatusPaymentRequired:
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrValidation, payment.ErrDeclined)
	case status == http.StatusBadRequest:
		return apperr.Invalid("%s", msg)
	case status == http.StatusUnauthorized:
		return apperr.AuthRequired(op)
	case status == http.StatusForbidden:
		return apperr.Forbidden(op)
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %s: %w", op, msg, apperr.ErrNotFound)
	case status == http.StatusTooManyRequests, status >= 500:
		return apperr.Unavailable(op, fmt.Errorf("status %d: %s", status, msg))
	}
	return fmt.Errorf("%s: unexpected status %d: %s", op, status, msg)
}
