// Package privacy talks to the MPC gateway that encrypts payout addresses and
// amounts. The bridge never holds key material; it only asks the gateway to
// decrypt a value right before it is needed on chain.
package privacy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dwarvesf/zenz-bridge/internal/utils/config"
	"github.com/dwarvesf/zenz-bridge/internal/utils/logger"
)

var (
	// ErrUnavailable is returned when the gateway could not be reached or
	// answered with a server error; the call may be retried.
	ErrUnavailable = errors.New("privacy: gateway unavailable")
	// ErrRejected means the gateway refused the input, e.g. a malformed ciphertext.
	ErrRejected = errors.New("privacy: rejected")
)

type Cipher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

type Client struct {
	client *resty.Client
	logger *logger.Logger
}

// New returns a gateway client, or a Passthrough when privacy is disabled.
func New(cfg config.PrivacyConfig, logger *logger.Logger) Cipher {
	if !cfg.Enabled {
		return Passthrough{}
	}
	return NewClient(cfg.BaseURL, cfg.AuthToken, logger)
}

func NewClient(baseURL, token string, logger *logger.Logger) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15 * time.Second).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Client{client: c, logger: logger}
}

type encryptRequest struct {
	Value string `json:"value"`
}

type encryptResponse struct {
	Ciphertext string `json:"ciphertext"`
}

type decryptRequest struct {
	Ciphertext string `json:"ciphertext"`
}

type decryptResponse struct {
	Value string `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) Encrypt(ctx context.Context, plaintext string) (string, error) {
	var out encryptResponse
	if err := c.post(ctx, "/v1/encrypt", encryptRequest{Value: plaintext}, &out); err != nil {
		return "", err
	}
	if out.Ciphertext == "" {
		return "", fmt.Errorf("%w: empty ciphertext", ErrUnavailable)
	}
	return out.Ciphertext, nil
}

func (c *Client) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if strings.TrimSpace(ciphertext) == "" {
		return "", fmt.Errorf("%w: empty ciphertext", ErrRejected)
	}
	var out decryptResponse
	if err := c.post(ctx, "/v1/decrypt", decryptRequest{Ciphertext: ciphertext}, &out); err != nil {
		return "", err
	}
	if out.Value == "" {
		return "", fmt.Errorf("%w: empty plaintext", ErrRejected)
	}
	return out.Value, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var apiErr errorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		c.logger.Error("[privacy.post] request failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, code)
	default:
		c.logger.Warn("[privacy.post] gateway rejected request", map[string]string{
			"path":   path,
			"status": resp.Status(),
			"error":  apiErr.Error,
		})
		return fmt.Errorf("%w: status %d: %s", ErrRejected, code, apiErr.Error)
	}
}

// Passthrough is the Cipher used when privacy is off: values are stored and
// used as given.
type Passthrough struct{}

func (Passthrough) Encrypt(_ context.Context, plaintext string) (string, error) {
	return plaintext, nil
}

func (Passthrough) Decrypt(_ context.Context, ciphertext string) (string, error) {
	return ciphertext, nil
}
