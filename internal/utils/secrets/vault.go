package secrets

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const K8sTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// VaultProvider reads string values from a KV v2 mount after logging in
// with the pod's Kubernetes service account.
type VaultProvider struct {
	client *resty.Client
	kvPath string
	token  string
}

type vaultLoginResponse struct {
	Auth *struct {
		ClientToken string `json:"client_token"`
	} `json:"auth"`
	Errors []string `json:"errors"`
}

type vaultKVResponse struct {
	Data *struct {
		Data map[string]any `json:"data"`
	} `json:"data"`
	Errors []string `json:"errors"`
}

func NewVault(ctx context.Context, addr, kvPath, role, tokenPath string) (*VaultProvider, error) {
	if addr == "" || kvPath == "" {
		return nil, fmt.Errorf("%w: vault address and kv path are required", ErrInvalidConfig)
	}
	jwt, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read service account token: %v", ErrInvalidConfig, err)
	}

	v := &VaultProvider{
		client: resty.New().SetBaseURL(strings.TrimRight(addr, "/")).SetTimeout(10 * time.Second),
		kvPath: strings.Trim(kvPath, "/"),
	}
	if err := v.login(ctx, role, strings.TrimSpace(string(jwt))); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *VaultProvider) login(ctx context.Context, role, jwt string) error {
	var out vaultLoginResponse
	resp, err := v.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"jwt": jwt, "role": role}).
		SetResult(&out).
		SetError(&out).
		Post("/v1/auth/kubernetes/login")
	if err != nil {
		return fmt.Errorf("secrets: vault login: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("secrets: vault login status %d: %v", resp.StatusCode(), out.Errors)
	}
	if out.Auth == nil || out.Auth.ClientToken == "" {
		return fmt.Errorf("secrets: vault login returned no client token")
	}
	v.token = out.Auth.ClientToken
	return nil
}

func (v *VaultProvider) Get(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty secret key", ErrInvalidConfig)
	}

	var out vaultKVResponse
	resp, err := v.client.R().
		SetContext(ctx).
		SetHeader("X-Vault-Token", v.token).
		SetResult(&out).
		SetError(&out).
		Get("/v1/" + v.kvPath)
	if err != nil {
		return "", fmt.Errorf("secrets: vault get: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", fmt.Errorf("%w: vault path %s", ErrNotFound, v.kvPath)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("secrets: vault get status %d: %v", resp.StatusCode(), out.Errors)
	}
	if out.Data == nil || out.Data.Data == nil {
		return "", fmt.Errorf("%w: vault path %s has no data", ErrNotFound, v.kvPath)
	}

	raw, ok := out.Data.Data[key]
	if !ok {
		return "", fmt.Errorf("%w: key %q", ErrNotFound, key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: key %q is not a string", ErrNotFound, key)
	}
	return s, nil
}
