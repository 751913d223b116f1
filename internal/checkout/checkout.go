// Package checkout starts hosted checkout sessions for plan upgrades.
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rentwise/portal/internal/config"
)

var (
	ErrInvalid     = errors.New("invalid checkout request")
	ErrUnavailable = errors.New("checkout unavailable")
)

type Request struct {
	PriceID    string `json:"priceId"`
	UserID     string `json:"userId"`
	Email      string `json:"email,omitempty"`
	SuccessURL string `json:"successUrl,omitempty"`
	CancelURL  string `json:"cancelUrl,omitempty"`
}

// Provider returns the URL the user is sent to. The URL is opaque to callers.
type Provider interface {
	CreateSession(ctx context.Context, req Request) (string, error)
}

// FunctionClient calls the hosted checkout function over HTTP.
type FunctionClient struct {
	endpoint   string
	apiKey     string
	successURL string
	cancelURL  string
	http       *http.Client
}

func NewFunctionClient(cfg config.CheckoutConfig, hc *http.Client) (*FunctionClient, error) {
	if cfg.FunctionURL == "" {
		return nil, fmt.Errorf("%w: CHECKOUT_FUNCTION_URL not set", ErrUnavailable)
	}
	if _, err := url.ParseRequestURI(cfg.FunctionURL); err != nil {
		return nil, fmt.Errorf("checkout function url: %w", err)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &FunctionClient{
		endpoint:   cfg.FunctionURL,
		apiKey:     cfg.APIKey,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		http:       hc,
	}, nil
}

func (f *FunctionClient) CreateSession(ctx context.Context, req Request) (string, error) {
	if req.PriceID == "" || req.UserID == "" {
		return "", fmt.Errorf("%w: price and user are required", ErrInvalid)
	}
	if req.SuccessURL == "" {
		req.SuccessURL = f.successURL
	}
	if req.CancelURL == "" {
		req.CancelURL = f.cancelURL
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	hr.Header.Set("Content-Type", "application/json")
	if f.apiKey != "" {
		hr.Header.Set("Authorization", "Bearer "+f.apiKey)
	}
	resp, err := f.http.Do(hr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: function returned %d: %s", ErrUnavailable, resp.StatusCode, bytes.TrimSpace(b))
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("%w: empty checkout url", ErrUnavailable)
	}
	return out.URL, nil
}
