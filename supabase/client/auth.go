package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Auth returns a GoTrue auth client.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// AuthClient handles GoTrue password sessions.
type AuthClient struct {
	client *Client
}

// Session is the token pair returned by a sign-in or refresh.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// User is a GoTrue user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// SignInWithPassword authenticates with email and password.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	err := a.post(ctx, "/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	}, "", &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// RefreshToken exchanges a refresh token for a new session.
func (a *AuthClient) RefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	var session Session
	err := a.post(ctx, "/token?grant_type=refresh_token", map[string]string{
		"refresh_token": refreshToken,
	}, "", &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetUser resolves the user an access token belongs to.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.client.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	a.client.WithAccessToken(accessToken).setHeaders(req)

	resp, err := a.client.do(req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var user User
	if err := resp.JSON(&user); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &user, nil
}

// SignOut revokes the session behind accessToken.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	return a.post(ctx, "/logout", nil, accessToken, nil)
}

func (a *AuthClient) post(ctx context.Context, path string, payload any, accessToken string, out any) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.client.baseURL+"/auth/v1"+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	c := a.client
	if accessToken != "" {
		c = c.WithAccessToken(accessToken)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := resp.JSON(out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
