// Package session owns the broker's session record: the bearer token and
// the master secret used for vault-scoped requests.
//
// The record is only ever mutated through Store, which the broker holds
// exclusively. Both fields are written and cleared together; a record where
// exactly one field is present is the trace of a partial failure and is
// reported as not authenticated.
package session

// Storage keys of the durable record.
const (
	KeyAccessToken    = "access_token"
	KeyMasterPassword = "master_password"
)

// Record is the session as seen by consumers.
type Record struct {
	AccessToken    string `json:"access_token,omitempty"`
	MasterPassword string `json:"master_password,omitempty"`
}

// Authenticated reports whether both fields are present.
func (r Record) Authenticated() bool {
	return r.AccessToken != "" && r.MasterPassword != ""
}

// Empty reports whether neither field is present.
func (r Record) Empty() bool {
	return r.AccessToken == "" && r.MasterPassword == ""
}

// Partial reports whether exactly one field is present.
func (r Record) Partial() bool {
	return !r.Authenticated() && !r.Empty()
}
