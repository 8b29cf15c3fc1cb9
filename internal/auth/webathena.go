// Package auth turns a Webathena ticket exchange into a session.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nhle/mailto/internal/model"
)

const (
	StatusOK     = "OK"
	StatusDenied = "DENIED"
)

// DeniedMessage tells the user which Webathena permission to grant.
const DeniedMessage = "I need \"mailing lists and groups\" access in " +
	"order to change your forwarding settings."

var (
	// ErrClosed means the user dismissed the exchange. Callers ignore it.
	ErrClosed = errors.New("webathena window closed")

	// ErrDenied means the user refused to grant the requested ticket.
	ErrDenied = errors.New("login failed: " + DeniedMessage)
)

// Error is a failed exchange with Webathena.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return "webathena error: " + e.Message
	}
	return fmt.Sprintf("webathena error (%s): %s", e.Code, e.Message)
}

// IsError reports whether err (or any error in its chain) is an Error.
func IsError(err error) bool {
	var aErr *Error
	return errors.As(err, &aErr)
}

// Request names the ticket to obtain.
type Request struct {
	Realm     string   `json:"realm"`
	Principal []string `json:"principal"`
}

// RequestFromConfig builds the ticket request from configuration.
func RequestFromConfig(cfg model.WebathenaConfig) Request {
	return Request{Realm: cfg.Realm, Principal: cfg.Principal}
}

// Result is what the Webathena exchange hands back.
type Result struct {
	// Err carries the transport error reported instead of a result.
	Err string `json:"error,omitempty"`

	Status  string          `json:"status"`
	Session json.RawMessage `json:"session"`
}

// Exchanger performs the ticket exchange.
type Exchanger interface {
	Exchange(ctx context.Context, req Request) (*Result, error)
}

// DecodeResult parses exchange output. It accepts a full result object, a
// bare session object (treated as an OK result), or an object with only
// an "error" field. Blank input means the user gave up.
func DecodeResult(data []byte) (*Result, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return &Result{Err: "closed window"}, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, &Error{Code: "decode", Message: err.Error()}
	}

	if _, bare := probe["cname"]; bare {
		return &Result{Status: StatusOK, Session: json.RawMessage(trimmed)}, nil
	}

	var res Result
	if err := json.Unmarshal([]byte(trimmed), &res); err != nil {
		return nil, &Error{Code: "decode", Message: err.Error()}
	}
	return &res, nil
}

// Login interprets an exchange result. It returns ErrClosed when the user
// dismissed the exchange, ErrDenied when access was refused, and an
// *Error for anything else that is not a usable session.
func Login(res *Result) (*model.Session, error) {
	if res == nil {
		return nil, &Error{Message: "no response"}
	}
	if res.Err != "" {
		if strings.Contains(res.Err, "closed window") {
			return nil, ErrClosed
		}
		return nil, &Error{Code: "transport", Message: res.Err}
	}

	switch res.Status {
	case StatusOK:
	case StatusDenied:
		return nil, ErrDenied
	default:
		return nil, &Error{Code: res.Status, Message: "unexpected status"}
	}

	session, err := model.ParseSession(res.Session)
	if err != nil {
		return nil, &Error{Code: "session", Message: err.Error()}
	}
	return session, nil
}

// FileExchanger reads a saved exchange result from a file, or from Stdin
// when Path is "-".
type FileExchanger struct {
	Path  string
	Stdin io.Reader
}

// Exchange reads and decodes the result. The request is not sent anywhere;
// the file is expected to hold the answer to it.
func (f FileExchanger) Exchange(ctx context.Context, _ Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		data []byte
		err  error
	)
	if f.Path == "-" {
		in := f.Stdin
		if in == nil {
			in = os.Stdin
		}
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(f.Path)
	}
	if err != nil {
		return nil, &Error{Code: "read", Message: err.Error()}
	}

	return DecodeResult(data)
}

// TextExchanger decodes a result the user pasted into the terminal.
type TextExchanger struct {
	Text string
}

// Exchange decodes the pasted text.
func (t TextExchanger) Exchange(ctx context.Context, _ Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return DecodeResult([]byte(t.Text))
}

// Authenticate runs an exchange and interprets its result.
func Authenticate(ctx context.Context, ex Exchanger, req Request) (*model.Session, error) {
	res, err := ex.Exchange(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("exchanging ticket: %w", err)
	}
	return Login(res)
}

// Instructions explains how to obtain a ticket for req.
func Instructions(host string, req Request) string {
	return fmt.Sprintf(
		"Sign in at %s and request a ticket for %s@%s,\n"+
			"then paste the JSON result below.",
		host, strings.Join(req.Principal, "/"), req.Realm,
	)
}
