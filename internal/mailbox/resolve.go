package mailbox

import (
	"errors"
	"strings"

	"github.com/nhle/mailto/internal/model"
)

// Request is the complete list of addresses mail should be delivered to
// after a mutation. The server replaces the active set with exactly these
// addresses, internal mailbox first.
type Request []string

// Reason identifies why an edit was rejected before reaching the server.
type Reason int

const (
	ReasonEmptyAddress Reason = iota + 1
	ReasonTooManyInternal
	ReasonTooManyExternal
	ReasonReservedAddress
)

// reserved are path segments the API treats specially. An address equal to
// one of them would turn an update into a different request.
var reserved = map[string]bool{"reset": true, ".": true, "..": true}

// ValidationError reports an edit that cannot be expressed as a valid
// mailbox configuration.
type ValidationError struct {
	Reason  Reason
	Address string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonEmptyAddress:
		return "Enter an address to forward your mail to."
	case ReasonTooManyInternal:
		return "You can only have one MIT mailbox. Choose \"Instead\" to " +
			"replace your current Exchange or IMAP mailbox with " + e.Address + "."
	case ReasonTooManyExternal:
		return "You can only forward to one external address. To send your " +
			"mail to several outside addresses, create a mailing list with " +
			"them as members and forward to the list instead."
	case ReasonReservedAddress:
		return "\"" + e.Address + "\" is not an email address."
	default:
		return "invalid mailbox configuration"
	}
}

// IsValidationError reports whether err (or any error in its chain) is a
// ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// Resolve computes the mutation request that adds newAddress to the set
// according to target. The result never holds more than one internal and
// one external mailbox.
func Resolve(set Set, target ReplaceTarget, newAddress string) (Request, error) {
	addr := strings.TrimSpace(newAddress)
	if addr == "" {
		return nil, &ValidationError{Reason: ReasonEmptyAddress}
	}
	if reserved[strings.ToLower(addr)] {
		return nil, &ValidationError{Reason: ReasonReservedAddress, Address: addr}
	}

	kind := Classify(addr)
	drop, replacing := target.Index()

	var internal, external string
	for i, b := range set.boxes {
		if replacing && i == drop {
			continue
		}
		if b.Kind.IsInternal() {
			// A set may carry both an Exchange and an IMAP box; the
			// first one wins the internal slot.
			if internal == "" {
				internal = b.Address
			}
			continue
		}
		external = b.Address
	}

	if kind.IsInternal() {
		if internal != "" {
			return nil, &ValidationError{Reason: ReasonTooManyInternal, Address: addr}
		}
		internal = addr
	} else {
		if external != "" {
			return nil, &ValidationError{Reason: ReasonTooManyExternal, Address: addr}
		}
		external = addr
	}

	return buildRequest(internal, external), nil
}

// Dropped returns the mailboxes of set that req stops delivering to, other
// than the one target replaces. It is empty unless the server reported more
// than one internal mailbox.
func Dropped(set Set, target ReplaceTarget, req Request) []model.Mailbox {
	keep := make(map[string]bool, len(req))
	for _, addr := range req {
		keep[addr] = true
	}

	drop, replacing := target.Index()
	var out []model.Mailbox
	for i, b := range set.boxes {
		if replacing && i == drop {
			continue
		}
		if !keep[b.Address] {
			out = append(out, b)
		}
	}
	return out
}

// DeletionRequest builds the request that stops delivery to the mailbox
// of the given kind while keeping every other mailbox in the set.
func DeletionRequest(set Set, kind model.Kind) Request {
	req := make(Request, 0, set.Len())
	for _, b := range set.boxes {
		if b.Kind != kind {
			req = append(req, b.Address)
		}
	}
	return req
}

func buildRequest(internal, external string) Request {
	req := make(Request, 0, 2)
	if internal != "" {
		req = append(req, internal)
	}
	if external != "" {
		req = append(req, external)
	}
	return req
}
