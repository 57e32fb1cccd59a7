package services

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/feima-labs/feima-bridge/internal/core/domain"
	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
)

// oauthPaths are appended to a ConfigSource's AuthBaseURL to locate the
// identity provider's endpoints. The gateway does not publish discovery
// metadata, so these are fixed.
const (
	authorizePath = "/oauth/authorize"
	tokenPath     = "/oauth/token"
)

// newOAuth2Config builds the oauth2.Config for a single authorization
// attempt. ClientSecret is deliberately left unset: authorization is a
// public-client, PKCE-only flow, and golang.org/x/oauth2 omits the
// client_secret form field entirely when it is empty.
func newOAuth2Config(cfg driven.ConfigSource, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    cfg.ClientID(),
		Scopes:      cfg.Scopes(),
		RedirectURL: redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthBaseURL() + authorizePath,
			TokenURL: cfg.AuthBaseURL() + tokenPath,
		},
	}
}

// buildAuthorizationURL constructs the authorization URL for a fresh sign-in
// attempt, binding the PKCE code challenge and CSRF state into the request.
func buildAuthorizationURL(cfg driven.ConfigSource, state, codeVerifier, redirectURI string) string {
	oc := newOAuth2Config(cfg, redirectURI)
	return oc.AuthCodeURL(state, oauth2.S256ChallengeOption(codeVerifier))
}

// exchangeCodeForToken trades an authorization code and its PKCE verifier
// for a token response.
func exchangeCodeForToken(
	ctx context.Context,
	cfg driven.ConfigSource,
	code, redirectURI, codeVerifier string,
) (*domain.TokenResponse, error) {
	oc := newOAuth2Config(cfg, redirectURI)

	tok, err := oc.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, domain.WrapError(domain.ErrTokenExchangeFailed, "exchanging authorization code", err)
	}

	return tokenResponseFromOAuth2(tok), nil
}

// refreshAccessToken exchanges a refresh token for a new access token,
// preserving whatever refresh token the gateway returns (or reusing the
// supplied one if the gateway doesn't rotate it).
func refreshAccessToken(ctx context.Context, cfg driven.ConfigSource, refreshToken string) (*domain.TokenResponse, error) {
	oc := newOAuth2Config(cfg, "")

	src := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, domain.WrapError(domain.ErrTokenRefreshFailed, "refreshing access token", err)
	}

	resp := tokenResponseFromOAuth2(tok)
	if resp.RefreshToken == "" {
		resp.RefreshToken = refreshToken
	}
	return resp, nil
}

func tokenResponseFromOAuth2(tok *oauth2.Token) *domain.TokenResponse {
	resp := &domain.TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		resp.IDToken = idToken
	}
	if !tok.Expiry.IsZero() {
		if secs := tok.Expiry.Unix() - timeNow().Unix(); secs > 0 {
			resp.ExpiresIn = secs
		}
	}
	return resp
}

// getUserInfoClaims decodes an ID token's claims without verifying its
// signature: the token was already retrieved over an authenticated channel
// directly from the identity provider's token endpoint.
func getUserInfoClaims(idToken string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return nil, domain.WrapError(domain.ErrStoredTokenCorrupted, "decoding id token claims", err)
	}
	return claims, nil
}

// claimString reads a string claim, returning "" if absent or not a string.
func claimString(claims jwt.MapClaims, key string) string {
	v, ok := claims[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
