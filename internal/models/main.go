// Package models defines the wire structures exchanged with the vault backend
// and between the page agent, the control panel and the broker.
package models

// User represents the authenticated account as reported by the backend.
type User struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`
	// Email is the login email of the user.
	Email string `json:"email"`
	// Username is the display name chosen by the user.
	Username string `json:"username"`
	// MFAEnabled reports whether a second factor is required on login.
	MFAEnabled bool `json:"mfa_enabled"`
	// CreatedAt is the account creation timestamp as sent by the backend.
	CreatedAt string `json:"created_at"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email          string  `json:"email"`
	MasterPassword string  `json:"master_password"`
	MFACode        *string `json:"mfa_code"`
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email          string `json:"email"`
	Username       string `json:"username"`
	MasterPassword string `json:"master_password"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	// AccessToken is the bearer token for subsequent requests.
	AccessToken string `json:"access_token"`
	// TokenType is always "bearer".
	TokenType string `json:"token_type"`
	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int `json:"expires_in"`
	// User is the account the token was issued for.
	User *User `json:"user"`
}

// Credential is a captured login as approved by the user in the save prompt.
type Credential struct {
	// Site is the short site name, e.g. "example" for www.example.com.
	Site string `json:"site_name"`
	// URL is the full page URL the credential was captured on.
	URL string `json:"url"`
	// Username is the identity field value.
	Username string `json:"username"`
	// Password is the password field value.
	Password string `json:"password"`
}

// VaultEntryInput is the body of POST /api/vault/add and PUT /api/vault/{id}.
type VaultEntryInput struct {
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	URL      string `json:"url,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Category string `json:"category,omitempty"`
	Favorite *bool  `json:"favorite,omitempty"`
}

// EntryFromCredential maps a captured credential onto a vault entry,
// using the site name as the entry title.
func EntryFromCredential(c Credential) VaultEntryInput {
	return VaultEntryInput{
		Title:    c.Site,
		Username: c.Username,
		Password: c.Password,
		URL:      c.URL,
	}
}

// VaultEntry is a stored vault entry. Password and Notes are only present
// in detail responses.
type VaultEntry struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Username      *string `json:"username"`
	URL           *string `json:"url"`
	Category      *string `json:"category"`
	Favorite      bool    `json:"favorite"`
	StrengthScore *int    `json:"strength_score,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
	Password      string  `json:"password,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

// PasswordStrength is the result of POST /api/vault/check-strength.
type PasswordStrength struct {
	Score       int      `json:"score"`
	Label       string   `json:"label"`
	Suggestions []string `json:"suggestions"`
}

// BreachResult is the result of POST /api/vault/check-breach.
type BreachResult struct {
	Breached bool   `json:"is_breached"`
	Count    int    `json:"breach_count"`
	Message  string `json:"message"`
}

// MFAStatus is the result of GET /api/mfa/status.
type MFAStatus struct {
	Enabled bool `json:"enabled"`
}

// MFASetup is the result of POST /api/mfa/setup.
type MFASetup struct {
	Secret          string `json:"secret"`
	QRCode          string `json:"qr_code"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// AnalyticsDashboard is the result of GET /api/analytics/dashboard.
type AnalyticsDashboard struct {
	TotalPasswords    int            `json:"total_passwords"`
	WeakPasswords     int            `json:"weak_passwords"`
	ReusedPasswords   int            `json:"reused_passwords"`
	OldPasswords      int            `json:"old_passwords"`
	BreachedPasswords int            `json:"breached_passwords"`
	AverageStrength   float64        `json:"average_strength"`
	CategoryBreakdown map[string]int `json:"category_breakdown"`
}
