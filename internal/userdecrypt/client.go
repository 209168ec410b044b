package userdecrypt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	"github.com/cenkalti/backoff/v4"

	"zsphere/internal/grant"
	"zsphere/internal/oracle"
)

const DefaultRetryTimeout = 20 * time.Second

// Client talks to a decryption oracle over HTTP.
type Client struct {
	baseURL      string
	http         *http.Client
	retryTimeout time.Duration
	logger       log.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

func WithRetryTimeout(d time.Duration) ClientOption {
	return func(cl *Client) { cl.retryTimeout = d }
}

func NewClient(baseURL string, logger log.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: 30 * time.Second},
		retryTimeout: DefaultRetryTimeout,
		logger:       logger.With("module", "userdecrypt"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserDecrypt posts the request, retrying transport failures and 5xx
// responses. Oracle rejections come back as the registered decrypt errors.
func (c *Client) UserDecrypt(ctx context.Context, req grant.UserDecryptRequest) (grant.UserDecryptResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return grant.UserDecryptResponse{}, err
	}

	var out grant.UserDecryptResponse
	op := func() error {
		res, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		out = res
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("oracle request failed, retrying", "err", err, "wait", wait)
	}
	expBackOff := backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(c.retryTimeout))
	if err := backoff.RetryNotify(op, backoff.WithContext(expBackOff, ctx), notify); err != nil {
		return grant.UserDecryptResponse{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, body []byte) (grant.UserDecryptResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+oracle.UserDecryptPath, bytes.NewReader(body))
	if err != nil {
		return grant.UserDecryptResponse{}, backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return grant.UserDecryptResponse{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return grant.UserDecryptResponse{}, err
	}

	if resp.StatusCode != http.StatusOK {
		err := decodeError(resp.StatusCode, raw)
		if resp.StatusCode < http.StatusInternalServerError {
			return grant.UserDecryptResponse{}, backoff.Permanent(err)
		}
		return grant.UserDecryptResponse{}, err
	}

	var out grant.UserDecryptResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return grant.UserDecryptResponse{}, backoff.Permanent(fmt.Errorf("decode oracle response: %w", err))
	}
	return out, nil
}

func decodeError(status int, raw []byte) error {
	var e grant.ErrorResponse
	if err := json.Unmarshal(raw, &e); err != nil || e.Code == 0 {
		return fmt.Errorf("oracle returned %d: %s", status, strings.TrimSpace(string(raw)))
	}
	return errorsmod.ABCIError(e.Codespace, e.Code, e.Message)
}
