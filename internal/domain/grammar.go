package domain

import (
	"regexp"
	"strings"

	"github.com/couchcryptid/wsjtx-influx-etl/internal/maidenhead"
)

// Grammar recognizes the structural tokens of a decode message.
type Grammar interface {
	// IsLocatorToken reports whether token has the shape of a grid locator.
	IsLocatorToken(token string) bool
	// ExtractSenderCallsign returns the callsign of the transmitting station,
	// or a bracketed placeholder such as "<...>" for an unresolved hash.
	ExtractSenderCallsign(message string) (string, bool)
}

var (
	// callsignRe accepts plain and portable callsigns: EK5AUA/R, R0FBA/9, 9A5TW.
	callsignRe = regexp.MustCompile(`^[A-Z0-9/]{3,15}$`)

	// bracketedRe matches hashed compound callsigns: <...>, <R0FBA/9>.
	bracketedRe = regexp.MustCompile(`^<[^<>\s]+>$`)

	// cqModifierRe matches directed-CQ qualifiers: DX, NA, POTA, or a CQ zone like 014.
	cqModifierRe = regexp.MustCompile(`^([A-Z]{1,4}|[0-9]{3})$`)
)

// WSJTXGrammar implements Grammar for the standard WSJT-X message formats:
//
//	CQ [modifier] <call> [grid]
//	<target> <sender> [R] [grid|report|RRR|RR73|73]
//
// Messages carrying several sub-messages separated by ";" and free text
// longer than four words have no recognizable sender.
type WSJTXGrammar struct{}

// IsLocatorToken accepts 4, 6 or 8 character locators. "RR73" passes as well;
// excluding acknowledgements is the caller's decision.
func (WSJTXGrammar) IsLocatorToken(token string) bool {
	switch len(token) {
	case 4, 6, 8:
		return maidenhead.Valid(token)
	default:
		return false
	}
}

func (WSJTXGrammar) ExtractSenderCallsign(message string) (string, bool) {
	if strings.Contains(message, ";") {
		return "", false
	}
	tokens := strings.Fields(message)
	if len(tokens) < 2 {
		return "", false
	}

	var candidate string
	if strings.EqualFold(tokens[0], "CQ") {
		rest := tokens[1:]
		if len(rest) >= 2 && cqModifierRe.MatchString(strings.ToUpper(rest[0])) {
			rest = rest[1:]
		}
		candidate = rest[0]
	} else {
		switch len(tokens) {
		case 2, 3:
		case 4:
			if !strings.EqualFold(tokens[2], "R") {
				return "", false
			}
		default:
			return "", false
		}
		candidate = tokens[1]
	}

	if !isCallsignToken(candidate) {
		return "", false
	}
	return candidate, true
}

func isCallsignToken(token string) bool {
	if bracketedRe.MatchString(token) {
		return true
	}
	upper := strings.ToUpper(token)
	if !callsignRe.MatchString(upper) {
		return false
	}
	return strings.ContainsAny(upper, "0123456789") &&
		strings.ContainsAny(upper, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
}
