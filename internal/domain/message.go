package domain

import "strings"

// ParsedMessage is the structured content of a decode message.
type ParsedMessage struct {
	CQ             bool
	SenderCallsign string
	SenderGrid     string
}

// MessageParser extracts the calling station and its grid from decode text.
type MessageParser struct {
	grammar Grammar
}

// NewMessageParser creates a parser backed by grammar. A nil grammar selects
// WSJTXGrammar.
func NewMessageParser(grammar Grammar) *MessageParser {
	if grammar == nil {
		grammar = WSJTXGrammar{}
	}
	return &MessageParser{grammar: grammar}
}

// Parse tokenizes message and reports whether it is a CQ call, who sent it,
// and, for a plain "CQ <call> <grid>" call, the sender's grid.
func (p *MessageParser) Parse(message string) ParsedMessage {
	tokens := strings.Fields(message)
	if len(tokens) == 0 {
		return ParsedMessage{}
	}

	var parsed ParsedMessage
	parsed.CQ = strings.EqualFold(tokens[0], "CQ")

	if len(tokens) > 1 && isFillerWord(tokens[1]) {
		tokens = append(tokens[:1:1], tokens[2:]...)
	}

	if call, ok := p.grammar.ExtractSenderCallsign(message); ok {
		parsed.SenderCallsign = call
	}

	if parsed.CQ && len(tokens) == 3 && p.isGrid(tokens[2]) {
		parsed.SenderGrid = tokens[2]
	}
	return parsed
}

// isGrid excludes RR73, an acknowledgement that happens to be a valid locator.
func (p *MessageParser) isGrid(token string) bool {
	if strings.EqualFold(token, "RR73") {
		return false
	}
	return p.grammar.IsLocatorToken(token)
}

func isFillerWord(token string) bool {
	return strings.EqualFold(token, "DX") || strings.EqualFold(token, "NA")
}
