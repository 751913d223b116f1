package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Token is a verified token that can expose its claims.
// It is satisfied by *oidc.IDToken and by test fakes.
type Token interface {
	Claims(v interface{}) error
}

// TokenVerifier checks a raw ID token.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// Authenticator additionally drives the OAuth2 flows against the provider.
type Authenticator interface {
	TokenVerifier
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Token, error)
	PasswordLogin(ctx context.Context, username, password string) (Token, error)
}

var ErrNoIDToken = errors.New("token response has no id_token")

// Verifier wraps the OIDC provider, its token verifier and the OAuth2 client config
type Verifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth    *oauth2.Config
}

type ClientConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewVerifier discovers the provider at the issuer URL.
func NewVerifier(ctx context.Context, cc ClientConfig) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, cc.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return &Verifier{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: cc.ClientID}),
		oauth: &oauth2.Config{
			ClientID:     cc.ClientID,
			ClientSecret: cc.ClientSecret,
			RedirectURL:  cc.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

func (v *Verifier) Verify(ctx context.Context, raw string) (Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

func (v *Verifier) AuthCodeURL(state string) string {
	return v.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens and verifies the returned id_token.
func (v *Verifier) Exchange(ctx context.Context, code string) (Token, error) {
	tok, err := v.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	return v.verifyResponse(ctx, tok)
}

// PasswordLogin uses the resource-owner password grant. Callers restrict it to non-production.
func (v *Verifier) PasswordLogin(ctx context.Context, username, password string) (Token, error) {
	tok, err := v.oauth.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("password grant: %w", err)
	}
	return v.verifyResponse(ctx, tok)
}

func (v *Verifier) verifyResponse(ctx context.Context, tok *oauth2.Token) (Token, error) {
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, ErrNoIDToken
	}
	return v.Verify(ctx, raw)
}
