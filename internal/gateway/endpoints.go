package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/atinyakov/keeperbridge/internal/models"
)

// Login authenticates with the backend. mfaCode may be nil.
func (c *Client) Login(ctx context.Context, email, masterPassword string, mfaCode *string) (*models.TokenResponse, error) {
	var tok models.TokenResponse
	_, err := c.Do(ctx, http.MethodPost, "/api/auth/login", models.LoginRequest{
		Email:          email,
		MasterPassword: masterPassword,
		MFACode:        mfaCode,
	}, &tok)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, in models.RegisterRequest) (*models.User, error) {
	var u models.User
	if _, err := c.Do(ctx, http.MethodPost, "/api/auth/register", in, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout tells the backend the session ended.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Do(ctx, http.MethodPost, "/api/auth/logout", struct{}{}, nil)
	return err
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var u models.User
	if _, err := c.Do(ctx, http.MethodGet, "/api/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListEntries returns the vault entries without secrets.
func (c *Client) ListEntries(ctx context.Context) ([]models.VaultEntry, error) {
	var entries []models.VaultEntry
	if _, err := c.Do(ctx, http.MethodGet, "/api/vault/list", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetEntry returns one entry including its password.
func (c *Client) GetEntry(ctx context.Context, id string) (*models.VaultEntry, error) {
	var e models.VaultEntry
	if _, err := c.Do(ctx, http.MethodGet, "/api/vault/"+url.PathEscape(id), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// AddEntry stores a new entry.
func (c *Client) AddEntry(ctx context.Context, in models.VaultEntryInput) (*models.VaultEntry, error) {
	var e models.VaultEntry
	res, err := c.Do(ctx, http.MethodPost, "/api/vault/add", in, &e)
	if err != nil {
		return nil, err
	}
	if res.NoContent {
		return nil, nil
	}
	return &e, nil
}

// UpdateEntry changes the fields set in in.
func (c *Client) UpdateEntry(ctx context.Context, id string, in models.VaultEntryInput) (*models.VaultEntry, error) {
	var e models.VaultEntry
	res, err := c.Do(ctx, http.MethodPut, "/api/vault/"+url.PathEscape(id), in, &e)
	if err != nil {
		return nil, err
	}
	if res.NoContent {
		return nil, nil
	}
	return &e, nil
}

// DeleteEntry removes an entry.
func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	_, err := c.Do(ctx, http.MethodDelete, "/api/vault/"+url.PathEscape(id), nil, nil)
	return err
}

type passwordBody struct {
	Password string `json:"password"`
}

// CheckStrength scores a password.
func (c *Client) CheckStrength(ctx context.Context, password string) (*models.PasswordStrength, error) {
	var s models.PasswordStrength
	if _, err := c.Do(ctx, http.MethodPost, "/api/vault/check-strength", passwordBody{password}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CheckBreach asks whether a password appears in known breaches.
func (c *Client) CheckBreach(ctx context.Context, password string) (*models.BreachResult, error) {
	var b models.BreachResult
	if _, err := c.Do(ctx, http.MethodPost, "/api/vault/check-breach", passwordBody{password}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// MFAStatus reports whether a second factor is enabled.
func (c *Client) MFAStatus(ctx context.Context) (*models.MFAStatus, error) {
	var s models.MFAStatus
	if _, err := c.Do(ctx, http.MethodGet, "/api/mfa/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// MFASetup generates a new TOTP secret.
func (c *Client) MFASetup(ctx context.Context) (*models.MFASetup, error) {
	var s models.MFASetup
	if _, err := c.Do(ctx, http.MethodPost, "/api/mfa/setup", struct{}{}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

type codeBody struct {
	Code string `json:"code"`
}

// MFAEnable confirms secret with a code. The secret travels in a header.
func (c *Client) MFAEnable(ctx context.Context, code, secret string) error {
	_, err := c.Do(ctx, http.MethodPost, "/api/mfa/enable", codeBody{code}, nil, WithHeader(HeaderMFASecret, secret))
	return err
}

// MFADisable turns the second factor off.
func (c *Client) MFADisable(ctx context.Context, code string) error {
	_, err := c.Do(ctx, http.MethodPost, "/api/mfa/disable", codeBody{code}, nil)
	return err
}

// Dashboard returns the vault analytics summary.
func (c *Client) Dashboard(ctx context.Context) (*models.AnalyticsDashboard, error) {
	var d models.AnalyticsDashboard
	if _, err := c.Do(ctx, http.MethodGet, "/api/analytics/dashboard", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
