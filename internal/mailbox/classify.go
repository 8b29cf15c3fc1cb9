package mailbox

import (
	"regexp"

	"github.com/nhle/mailto/internal/model"
)

var (
	exchangePattern = regexp.MustCompile(`(?i)@EXCHANGE\.MIT\.EDU$`)
	imapPattern     = regexp.MustCompile(`(?i)@PO[0-9]+\.MIT\.EDU$`)
)

// Classify decides which kind of mailbox an address names. Anything not
// recognisably institutional, including malformed input, is external.
func Classify(address string) model.Kind {
	switch {
	case exchangePattern.MatchString(address):
		return model.KindExchange
	case imapPattern.MatchString(address):
		return model.KindIMAP
	default:
		return model.KindSMTP
	}
}

// Normalize fills in the kind of any mailbox the server sent with an
// unrecognised type.
func Normalize(status *model.Status) {
	for i := range status.Boxes {
		if !status.Boxes[i].Kind.Valid() {
			status.Boxes[i].Kind = Classify(status.Boxes[i].Address)
		}
	}
}
