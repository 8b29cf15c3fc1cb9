package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoPrincipal is returned when a session carries no client principal.
var ErrNoPrincipal = errors.New("session has no client principal")

// Session is a Webathena credential. The raw JSON is passed to the API
// untouched; only the client principal is read out of it.
type Session struct {
	raw      json.RawMessage
	username string
}

// principalView is the subset of a Webathena session this client reads.
type principalView struct {
	CName struct {
		NameString []string `json:"nameString"`
	} `json:"cname"`
}

// ParseSession decodes a Webathena session object and extracts the
// username from the first component of its client principal.
func ParseSession(raw []byte) (*Session, error) {
	var pv principalView
	if err := json.Unmarshal(raw, &pv); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if len(pv.CName.NameString) == 0 || pv.CName.NameString[0] == "" {
		return nil, ErrNoPrincipal
	}

	buf := make(json.RawMessage, len(raw))
	copy(buf, raw)

	return &Session{raw: buf, username: pv.CName.NameString[0]}, nil
}

// Username returns the user the session was issued to.
func (s *Session) Username() string {
	return s.username
}

// Raw returns the opaque credential as received from Webathena.
func (s *Session) Raw() []byte {
	return s.raw
}

// Email returns the user's institutional address.
func (s *Session) Email() string {
	return s.username + "@mit.edu"
}
