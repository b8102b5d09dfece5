package social

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/router-for-me/CLIPresence/internal/logging"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// GetToken exchanges an authorization code plus its PKCE verifier for a token bundle.
// A failed exchange reports an unsuccessful result and an empty bundle.
func (c *Client) GetToken(clientID uint64, code, verifier, redirectURI string, cb TokenCallback) {
	go func() {
		result, bundle := c.exchangeCode(clientID, code, verifier, redirectURI)
		if cb != nil {
			c.dispatch(func() { cb(result, bundle) })
		}
	}()
}

func (c *Client) exchangeCode(clientID uint64, code, verifier, redirectURI string) (ClientResult, TokenBundle) {
	if code == "" || verifier == "" {
		c.logger.Error("token exchange requires both a code and a verifier")
		return Failure(NewAuthenticationError(ErrCodeExchangeFailed, errors.New("missing code or verifier"))), TokenBundle{}
	}

	ctx := c.ctx
	if c.httpClient.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout+time.Second)
		defer cancel()
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	conf := c.oauthConfig(clientID, redirectURI, nil)
	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			errCode := retrieveErr.ErrorCode
			if errCode == "" {
				errCode = "token_exchange_failed"
			}
			oauthErr := NewOAuthError(errCode, retrieveErr.ErrorDescription, status)
			c.logger.Errorf("token exchange rejected: %v", oauthErr)
			return Failure(oauthErr), TokenBundle{}
		}
		c.logger.Errorf("token exchange failed: %v", err)
		res := Failure(NewAuthenticationError(ErrCodeExchangeFailed, err))
		// no response was received
		res.StatusCode = 0
		return res, TokenBundle{}
	}

	bundle := TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    time.Duration(tok.ExpiresIn) * time.Second,
	}
	if tok.TokenType != "" && !strings.EqualFold(tok.TokenType, "bearer") {
		bundle.TokenType = TokenTypeUser
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		bundle.Scopes = strings.Fields(scope)
	}
	c.logger.Debugf("token exchange succeeded: %s", logging.Redact(bundle.AccessToken))
	return Success(), bundle
}

// UpdateToken validates token against the API and makes it the credential for Connect.
func (c *Client) UpdateToken(tokenType AuthorizationTokenType, token string, cb UpdateTokenCallback) {
	go func() {
		result := c.validateToken(tokenType, token)
		if cb != nil {
			c.dispatch(func() { cb(result) })
		}
	}()
}

func (c *Client) validateToken(tokenType AuthorizationTokenType, token string) ClientResult {
	if strings.TrimSpace(token) == "" {
		c.logger.Error("refusing to store an empty token")
		return Failure(NewAuthenticationError(ErrTokenRejected, errors.New("empty token")))
	}

	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, c.apiURL("/users/@me"), nil)
	if err != nil {
		return Failure(fmt.Errorf("failed to create user request: %w", err))
	}
	req.Header.Set("Authorization", authorizationHeader(tokenType, token))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Errorf("token validation request failed: %v", err)
		return Failure(fmt.Errorf("token validation request failed: %w", err))
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			c.logger.Errorf("failed to close response body: %v", errClose)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failure(fmt.Errorf("failed to read user response: %w", err))
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.logger.Errorf("token rejected with status %d", resp.StatusCode)
		res := Failure(NewAuthenticationError(ErrTokenRejected, fmt.Errorf("status %d", resp.StatusCode)))
		res.StatusCode = resp.StatusCode
		return res
	case resp.StatusCode != http.StatusOK:
		c.logger.Errorf("token validation failed with status %d", resp.StatusCode)
		res := Failure(fmt.Errorf("token validation failed with status %d", resp.StatusCode))
		res.StatusCode = resp.StatusCode
		return res
	}

	user := RelationshipUser{
		ID:       gjson.GetBytes(body, "id").String(),
		Username: gjson.GetBytes(body, "username").String(),
	}
	c.mu.Lock()
	c.token = token
	c.tokenType = tokenType
	c.user = user
	c.mu.Unlock()
	c.logger.Infof("token accepted for user %s", user.Username)
	return Success()
}

func authorizationHeader(tokenType AuthorizationTokenType, token string) string {
	if tokenType == TokenTypeBearer {
		return "Bearer " + token
	}
	return token
}
