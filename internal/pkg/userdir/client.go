// Package userdir talks to the single sign-on service that owns user
// accounts.
package userdir

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

	"github.com/ManuelReschke/OproPay/internal/pkg/env"
	"github.com/ManuelReschke/OproPay/internal/pkg/payments"
)

type Client struct {
	BaseURL string
	APIKey  string

	HTTPClient *http.Client
}

type userRequest struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email"`
}

type userResponse struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
}

func NewClientFromEnv() *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("SSO_API_URL", "")), "/"),
		APIKey:  strings.TrimSpace(env.GetEnv("SSO_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: env.GetEnvDuration("SSO_TIMEOUT", 10*time.Second),
		},
	}
}

// CreateOrFetchUser returns the account registered for email, creating it
// when none exists.
func (c *Client) CreateOrFetchUser(ctx context.Context, firstName, email string) (*payments.Identity, error) {
	if c.BaseURL == "" || c.APIKey == "" {
		return nil, errors.New("SSO_API_URL/SSO_API_KEY are not configured")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("email is required")
	}

	payload, err := json.Marshal(userRequest{FirstName: strings.TrimSpace(firstName), Email: email})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/users/", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sso user request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out userResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("sso user response: %w", err)
	}
	if out.ID == 0 || strings.TrimSpace(out.Username) == "" {
		return nil, errors.New("sso user response has no id or username")
	}
	return &payments.Identity{
		ID:        out.ID,
		Username:  out.Username,
		Email:     out.Email,
		FirstName: out.FirstName,
	}, nil
}
