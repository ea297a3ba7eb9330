// Package message defines the envelope exchanged between the page agent, the
// control panel, the session bridge and the broker, together with the single
// response every envelope produces.
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atinyakov/keeperbridge/internal/models"
	"github.com/google/uuid"
)

// Action names one broker operation.
type Action string

const (
	// ActionLogin authenticates against the backend and persists the session.
	ActionLogin Action = "login"
	// ActionLogout clears the session record.
	ActionLogout Action = "logout"
	// ActionCheckAuth reports whether the stored token is still valid.
	ActionCheckAuth Action = "checkAuth"
	// ActionSavePassword stores an approved credential in the vault.
	ActionSavePassword Action = "savePassword"
	// ActionSyncLogin overwrites the session with one established elsewhere.
	ActionSyncLogin Action = "syncLogin"
	// ActionCheckLoginStatus asks a page agent whether its page has password forms.
	ActionCheckLoginStatus Action = "checkLoginStatus"
)

// Envelope is one request on the channel. Only the fields relevant to
// Action are set.
type Envelope struct {
	ID     string `json:"id,omitempty"`
	Action Action `json:"action"`

	// login
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	MFACode  string `json:"mfaCode,omitempty"`

	// savePassword
	Data *models.Credential `json:"data,omitempty"`

	// syncLogin
	AccessToken    string `json:"access_token,omitempty"`
	MasterPassword string `json:"master_password,omitempty"`
}

// New returns an envelope for action with a fresh request id.
func New(action Action) Envelope {
	return Envelope{ID: uuid.NewString(), Action: action}
}

// Login builds a login envelope.
func Login(email, password, mfaCode string) Envelope {
	env := New(ActionLogin)
	env.Email, env.Password, env.MFACode = email, password, mfaCode
	return env
}

// SavePassword builds a savePassword envelope.
func SavePassword(c models.Credential) Envelope {
	env := New(ActionSavePassword)
	env.Data = &c
	return env
}

// SyncLogin builds a syncLogin envelope.
func SyncLogin(accessToken, masterPassword string) Envelope {
	env := New(ActionSyncLogin)
	env.AccessToken, env.MasterPassword = accessToken, masterPassword
	return env
}

// Code classifies a failed response.
type Code string

const (
	CodeAuthExpired   Code = "auth_expired"
	CodeMFARequired   Code = "mfa_required"
	CodeRequestFailed Code = "request_failed"
	CodeUnknownAction Code = "unknown_action"
	CodeInvalid       Code = "invalid_request"
	CodeInternal      Code = "internal"
)

// ErrUnknownAction is reported for envelopes whose action has no handler.
var ErrUnknownAction = errors.New("Unknown action")

// Response is the single result of one envelope: either a success payload
// or a structured error. On the wire it is the payload object itself, or
// {"error": ..., "code": ...}.
type Response struct {
	Payload any
	Error   string
	Code    Code
}

// OK wraps a success payload.
func OK(payload any) Response {
	return Response{Payload: payload}
}

// Fail builds an error response.
func Fail(code Code, msg string) Response {
	return Response{Error: msg, Code: code}
}

// Failed reports whether r carries an error.
func (r Response) Failed() bool {
	return r.Error != ""
}

// MarshalJSON encodes the payload as-is on success, or the error object.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
			Code  Code   `json:"code,omitempty"`
		}{r.Error, r.Code})
	}
	if r.Payload == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Payload)
}

// Error is the client-side form of a failed response.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Decode interprets a raw response. A body carrying "error" becomes *Error;
// otherwise it is unmarshalled into out (which may be nil).
func Decode(raw []byte, out any) error {
	var probe struct {
		Error string `json:"error"`
		Code  Code   `json:"code"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if probe.Error != "" {
		return &Error{Code: probe.Code, Message: probe.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response payload: %w", err)
	}
	return nil
}

// Payloads of the broker actions.
type (
	// Success is the reply of logout, savePassword and syncLogin.
	Success struct {
		Success bool `json:"success"`
	}

	// LoginResult is the reply of a successful login.
	LoginResult struct {
		Success bool         `json:"success"`
		User    *models.User `json:"user"`
	}

	// AuthStatus is the reply of checkAuth.
	AuthStatus struct {
		IsLoggedIn bool         `json:"isLoggedIn"`
		User       *models.User `json:"user,omitempty"`
	}

	// LoginStatus is the reply of checkLoginStatus.
	LoginStatus struct {
		HasPasswordForms bool `json:"hasPasswordForms"`
	}
)
