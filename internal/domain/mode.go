package domain

import "strings"

// Mode is a digital transmission mode. The zero value is ModeUnknown and is
// never produced by ResolveMode.
type Mode uint8

const (
	ModeUnknown Mode = iota
	ModeWSPR
	ModeFST4
	ModeFT4
	ModeFT8
	ModeJT4
	ModeJT9
	ModeJT65
	ModeQ65
	ModeMSK144

	// Reported by pskreporter.info.
	ModeJS8
	ModeCW
	ModeVARAC
	ModeFST4W
	ModeRTTY
	ModePSK31
	ModeOPERA
	ModePI4
	ModeOLIVIA8
	ModeFSQ
	ModeROS
	ModeFREEDV
	ModeSSB
	ModeQ65B
	ModeOLIVIA

	// Supported by fldigi.
	ModePSK63
	ModeIFKP
	ModeCONTESTIA
	ModeDOMINOEX
	ModeMFSK
	ModeMT63
	ModeQPSK31
	ModeQPSK63
	Mode8PSK125
	ModePSKR
	ModeSYNOP
	ModeTHOR
	ModeSITORB
	ModeTHROB
	ModeOFDM

	modeCount
)

// modeInfo pairs each variant's identifier with its display string. Names
// that start with a digit carry a leading underscore in their identifier.
var modeInfo = [modeCount]struct {
	identifier string
	display    string
}{
	ModeUnknown:   {"", ""},
	ModeWSPR:      {"WSPR", "WSPR"},
	ModeFST4:      {"FST4", "FST4"},
	ModeFT4:       {"FT4", "FT4"},
	ModeFT8:       {"FT8", "FT8"},
	ModeJT4:       {"JT4", "JT4"},
	ModeJT9:       {"JT9", "JT9"},
	ModeJT65:      {"JT65", "JT65"},
	ModeQ65:       {"Q65", "Q65"},
	ModeMSK144:    {"MSK144", "MSK144"},
	ModeJS8:       {"JS8", "JS8"},
	ModeCW:        {"CW", "CW"},
	ModeVARAC:     {"VARAC", "VARAC"},
	ModeFST4W:     {"FST4W", "FST4W"},
	ModeRTTY:      {"RTTY", "RTTY"},
	ModePSK31:     {"PSK31", "PSK31"},
	ModeOPERA:     {"OPERA", "OPERA"},
	ModePI4:       {"PI4", "PI4"},
	ModeOLIVIA8:   {"OLIVIA8", "OLIVIA8"},
	ModeFSQ:       {"FSQ", "FSQ"},
	ModeROS:       {"ROS", "ROS"},
	ModeFREEDV:    {"FREEDV", "FREEDV"},
	ModeSSB:       {"SSB", "SSB"},
	ModeQ65B:      {"Q65B", "Q65B"},
	ModeOLIVIA:    {"OLIVIA", "OLIVIA"},
	ModePSK63:     {"PSK63", "PSK63"},
	ModeIFKP:      {"IFKP", "IFKP"},
	ModeCONTESTIA: {"CONTESTIA", "CONTESTIA"},
	ModeDOMINOEX:  {"DOMINOEX", "DOMINOEX"},
	ModeMFSK:      {"MFSK", "MFSK"},
	ModeMT63:      {"MT63", "MT63"},
	ModeQPSK31:    {"QPSK31", "QPSK31"},
	ModeQPSK63:    {"QPSK63", "QPSK63"},
	Mode8PSK125:   {"_8PSK125", "8PSK125"},
	ModePSKR:      {"PSKR", "PSKR"},
	ModeSYNOP:     {"SYNOP", "SYNOP"},
	ModeTHOR:      {"THOR", "THOR"},
	ModeSITORB:    {"SITORB", "SITORB"},
	ModeTHROB:     {"THROB", "THROB"},
	ModeOFDM:      {"OFDM", "OFDM"},
}

// wireModes maps the single-character mode codes used in WSJT-X decode
// telegrams.
var wireModes = map[byte]Mode{
	'`': ModeFST4,
	'+': ModeFT4,
	'~': ModeFT8,
	'$': ModeJT4,
	'@': ModeJT9,
	'#': ModeJT65,
	':': ModeQ65,
	'&': ModeMSK144,
}

var (
	modesByIdentifier = make(map[string]Mode, modeCount)
	modesByDisplay    = make(map[string]Mode, modeCount)
)

func init() {
	for m := ModeUnknown + 1; m < modeCount; m++ {
		modesByIdentifier[modeInfo[m].identifier] = m
		modesByDisplay[modeInfo[m].display] = m
	}
}

// ResolveMode looks up a mode by wire code, identifier, or display name.
// Names are matched case-insensitively. An unknown token reports ok=false;
// callers must not substitute a default.
func ResolveMode(token string) (Mode, bool) {
	if len(token) == 1 {
		if m, ok := wireModes[token[0]]; ok {
			return m, true
		}
	}

	upper := strings.ToUpper(token)
	if m, ok := modesByIdentifier[upper]; ok {
		return m, true
	}
	if m, ok := modesByDisplay[upper]; ok {
		return m, true
	}
	return ModeUnknown, false
}

// String returns the display name, e.g. "8PSK125".
func (m Mode) String() string {
	if m >= modeCount {
		return ""
	}
	return modeInfo[m].display
}

// Identifier returns the internal name, e.g. "_8PSK125".
func (m Mode) Identifier() string {
	if m >= modeCount {
		return ""
	}
	return modeInfo[m].identifier
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m > ModeUnknown && m < modeCount
}

// MarshalText encodes the mode by display name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Modes returns every known mode in declaration order.
func Modes() []Mode {
	out := make([]Mode, 0, modeCount-1)
	for m := ModeUnknown + 1; m < modeCount; m++ {
		out = append(out, m)
	}
	return out
}
