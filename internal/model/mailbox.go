package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind identifies where a mailbox delivers mail.
type Kind string

const (
	KindExchange Kind = "EXCHANGE"
	KindIMAP     Kind = "IMAP"
	KindSMTP     Kind = "SMTP"
)

// Kinds lists every mailbox kind in display order.
var Kinds = []Kind{KindExchange, KindIMAP, KindSMTP}

// ParseKind maps a wire or user-supplied name onto a Kind. Matching is
// case-insensitive and also accepts "external" for SMTP.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EXCHANGE":
		return KindExchange, nil
	case "IMAP":
		return KindIMAP, nil
	case "SMTP", "EXTERNAL":
		return KindSMTP, nil
	}
	return "", fmt.Errorf("unknown mailbox kind %q", s)
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindExchange || k == KindIMAP || k == KindSMTP
}

// IsInternal reports whether the mailbox is hosted by the institution.
func (k Kind) IsInternal() bool {
	return k == KindExchange || k == KindIMAP
}

// Label returns the human-readable name of the kind.
func (k Kind) Label() string {
	switch k {
	case KindExchange:
		return "Exchange"
	case KindIMAP:
		return "IMAP"
	case KindSMTP:
		return "External"
	default:
		return "Unknown"
	}
}

func (k Kind) String() string {
	return string(k)
}

// Mailbox is a single forwarding destination as reported by the server.
type Mailbox struct {
	// Kind is the delivery kind. It is empty when the server sent a type
	// this client does not know; callers fill it from the address.
	Kind Kind `json:"type"`

	// Address is the mailbox expressed as an email address.
	Address string `json:"address"`

	// Enabled is true iff mail is currently delivered to this mailbox.
	Enabled bool `json:"enabled"`
}

// UnmarshalJSON decodes a server mailbox, dropping unrecognised types
// instead of failing the whole response.
func (m *Mailbox) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    string `json:"type"`
		Address string `json:"address"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding mailbox: %w", err)
	}

	kind := Kind(strings.ToUpper(strings.TrimSpace(raw.Type)))
	if !kind.Valid() {
		kind = ""
	}

	m.Kind = kind
	m.Address = strings.TrimSpace(raw.Address)
	m.Enabled = raw.Enabled
	return nil
}

// Status is the full mailbox listing returned by every API endpoint.
type Status struct {
	// ModTime is the time of the last modification in ISO 8601 form.
	ModTime string `json:"modtime"`

	// ModBy is the username of whoever performed the last modification.
	ModBy string `json:"modby"`

	// ModWith names the tool used for the last modification.
	ModWith string `json:"modwith"`

	// Boxes holds current and disabled mailboxes.
	Boxes []Mailbox `json:"boxes"`
}

// modTimeLayouts are tried in order when parsing ModTime. The server
// emits local time without a zone.
var modTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// Modified parses ModTime. The second result is false when the value is
// missing or malformed.
func (s Status) Modified() (time.Time, bool) {
	if s.ModTime == "" {
		return time.Time{}, false
	}
	for _, layout := range modTimeLayouts {
		if t, err := time.ParseInLocation(layout, s.ModTime, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
