// Package repair recovers JSON values that a model cut off before their end.
// Everything here is pure: no I/O and no state shared between calls.
package repair

import (
	"encoding/json"
	"strings"
	"unicode"

	"bookforge-gateway/internal/errs"
)

const fence = "```"

// State is the scanner state of one repair attempt.
type State struct {
	BracketDepth  int
	BraceDepth    int
	InString      bool
	PendingEscape bool
}

// Step advances the scanner by one byte. Depth is only counted outside string
// literals; an escape consumes exactly the next byte.
func (s *State) Step(c byte) {
	if s.PendingEscape {
		s.PendingEscape = false
		return
	}
	if s.InString {
		switch c {
		case '\\':
			s.PendingEscape = true
		case '"':
			s.InString = false
		}
		return
	}

	switch c {
	case '"':
		s.InString = true
	case '{':
		s.BraceDepth++
	case '}':
		s.BraceDepth--
	case '[':
		s.BracketDepth++
	case ']':
		s.BracketDepth--
	}
}

// Depth is the total nesting depth.
func (s State) Depth() int {
	return s.BraceDepth + s.BracketDepth
}

// Scan runs a fresh scanner over text.
func Scan(text string) State {
	var s State
	for i := 0; i < len(text); i++ {
		s.Step(text[i])
	}
	return s
}

// Extract returns the most plausible JSON payload of a model answer: the body
// of the first fenced block (closed or not), then everything from the first
// '[' (or '{' when there is no '[') to the end.
func Extract(text string) string {
	body := text
	if start := strings.Index(text, fence); start >= 0 {
		rest := text[start+len(fence):]
		// Skip the info string ("json").
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		} else {
			rest = ""
		}
		if end := strings.Index(rest, fence); end >= 0 {
			rest = rest[:end]
		}
		body = rest
	}

	if i := strings.IndexByte(body, '['); i >= 0 {
		body = body[i:]
	} else if i := strings.IndexByte(body, '{'); i >= 0 {
		body = body[i:]
	}
	return strings.TrimSpace(body)
}

// Repair returns a payload that parses as JSON, or a truncated_payload error
// when the cut cannot be closed. Already valid payloads come back unchanged.
func Repair(text string) (string, error) {
	if whole, ok := validWhole(text); ok {
		return whole, nil
	}

	payload := Extract(text)
	if payload == "" {
		return "", truncatedError("the response contained no JSON")
	}
	if json.Valid([]byte(payload)) {
		return payload, nil
	}

	candidate := strings.TrimRightFunc(payload, unicode.IsSpace)
	if !endsMidStructure(candidate) {
		cut, ok := lastItemBoundary(candidate)
		if !ok {
			return emptyRoot(candidate), nil
		}
		candidate = cut
	}

	repaired := closeStructure(candidate)
	if !json.Valid([]byte(repaired)) {
		return "", truncatedError("the response was cut off in a way that could not be closed")
	}
	return repaired, nil
}

// validWhole returns text trimmed when it already is one JSON value. Extract
// is only consulted after this fails, so brackets or fences inside strings of
// a valid answer are never mistaken for its payload.
func validWhole(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return "", false
	}
	return trimmed, true
}

// endsMidStructure reports whether text stops right after a closing brace or
// bracket that is not part of a string.
func endsMidStructure(text string) bool {
	if text == "" {
		return false
	}
	last := text[len(text)-1]
	if last != '}' && last != ']' {
		return false
	}
	return !Scan(text).InString
}

// lastItemBoundary cuts text after the last "}," whose brace closes an item of
// the root container. The comma and everything after it are dropped.
func lastItemBoundary(text string) (string, bool) {
	var s State
	boundary := -1
	for i := 0; i < len(text); i++ {
		s.Step(text[i])
		if text[i] != '}' || s.InString || s.Depth() != 1 {
			continue
		}
		if next := nextNonSpace(text, i+1); next < len(text) && text[next] == ',' {
			boundary = i
		}
	}
	if boundary < 0 {
		return "", false
	}
	return text[:boundary+1], true
}

func nextNonSpace(text string, from int) int {
	for from < len(text) && strings.IndexByte(" \t\r\n", text[from]) >= 0 {
		from++
	}
	return from
}

// closeStructure appends closing braces, then closing brackets, for every
// level still open at the end of text.
func closeStructure(text string) string {
	s := Scan(text)

	var sb strings.Builder
	sb.Grow(len(text) + max(s.BraceDepth, 0) + max(s.BracketDepth, 0))
	sb.WriteString(text)
	for i := 0; i < s.BraceDepth; i++ {
		sb.WriteByte('}')
	}
	for i := 0; i < s.BracketDepth; i++ {
		sb.WriteByte(']')
	}
	return sb.String()
}

func emptyRoot(text string) string {
	if strings.HasPrefix(text, "{") {
		return "{}"
	}
	return "[]"
}

func truncatedError(detail string) error {
	return errs.Newf(errs.KindTruncatedPayload,
		"%s; try requesting fewer chapters or a shorter outline", detail)
}
