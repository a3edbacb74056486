// Package dialogue parses scripted-dialogue documents of the form
//
//	voice1_wav="voices/alice.wav"
//	voice2_wav="voices/bob.wav"
//
//	voice1="Hello, how are you?"
//	voice2="I'm fine, thanks."
//
// Keys ending in _wav declare reference voices; every other key is a
// spoken turn attributed to that voice.
package dialogue

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Turn is one spoken line, immutable after parsing. Index is the 0-based
// position of the turn in document order.
type Turn struct {
	Voice string
	Text  string
	Index int
}

// VoiceTable maps a voice id to the path of its reference audio sample.
type VoiceTable map[string]string

// Document is a fully parsed dialogue: the voice table plus turns in
// document order.
type Document struct {
	Voices VoiceTable
	Turns  []Turn
}

// ErrUnknownVoice marks a turn whose voice id has no _wav declaration.
var ErrUnknownVoice = errors.New("unknown voice")

// ErrNoTurns marks a document that declares no spoken lines.
var ErrNoTurns = errors.New("no dialogue lines found")

// ParseError reports a malformed or unresolvable line.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Options control parsing policy.
type Options struct {
	// AllowDefaultVoice keeps turns whose voice id was never declared;
	// such turns synthesize with the engine's built-in voice instead of
	// cloning. Off by default: an undeclared voice is a parse error.
	AllowDefaultVoice bool
}

const voiceSuffix = "_wav"

// Parse reads a dialogue document. The voice table is resolved over the
// whole document before turns are validated, so declaring a voice after
// the turns that use it is legal. Duplicate declarations keep the last
// value. Lines that are blank or do not match the key="value" grammar
// are ignored; a line that starts like an assignment but has broken
// quoting fails with the offending line number.
func Parse(text string, opts Options) (*Document, error) {
	doc := &Document{Voices: VoiceTable{}}

	type pending struct {
		turn Turn
		line int
	}
	var turns []pending

	for i, raw := range strings.Split(text, "\n") {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok, err := splitAssignment(line)
		if err != nil {
			return nil, &ParseError{Line: lineNo, Err: err}
		}
		if !ok {
			continue
		}

		if strings.HasSuffix(key, voiceSuffix) {
			id := strings.TrimSuffix(key, voiceSuffix)
			if id == "" {
				return nil, &ParseError{Line: lineNo, Err: errors.New("empty voice id")}
			}
			// Last declaration wins.
			doc.Voices[id] = value
			continue
		}

		turns = append(turns, pending{
			turn: Turn{Voice: key, Text: value, Index: len(turns)},
			line: lineNo,
		})
	}

	if len(turns) == 0 {
		return nil, ErrNoTurns
	}

	for _, p := range turns {
		if _, declared := doc.Voices[p.turn.Voice]; !declared && !opts.AllowDefaultVoice {
			return nil, &ParseError{
				Line: p.line,
				Err:  fmt.Errorf("%w: %q has no %s declaration", ErrUnknownVoice, p.turn.Voice, p.turn.Voice+voiceSuffix),
			}
		}
		doc.Turns = append(doc.Turns, p.turn)
	}

	return doc, nil
}

// splitAssignment matches `key="value"`. It returns ok=false for lines
// that are not assignments at all, and an error for assignments whose
// quoting is unbalanced or whose value embeds a double quote.
func splitAssignment(line string) (key, value string, ok bool, err error) {
	eq := strings.Index(line, "=")
	if eq <= 0 {
		return "", "", false, nil
	}
	key = strings.TrimSpace(line[:eq])
	if key == "" || strings.ContainsAny(key, " \t\"") {
		return "", "", false, nil
	}
	rest := strings.TrimSpace(line[eq+1:])
	if rest == "" || rest[0] != '"' {
		// Not the quoted grammar; treated as noise, not an error.
		return "", "", false, nil
	}
	if len(rest) < 2 || rest[len(rest)-1] != '"' {
		return "", "", false, errors.New("unterminated quote")
	}
	value = rest[1 : len(rest)-1]
	if strings.Contains(value, `"`) {
		return "", "", false, errors.New("embedded double quote")
	}
	return key, value, true, nil
}

// Serialize renders the document back into the key="value" grammar:
// voice declarations first, then turns in order. Parsing the output
// yields an equivalent document.
func Serialize(doc *Document) string {
	var b strings.Builder
	for _, id := range sortedVoiceIDs(doc.Voices) {
		fmt.Fprintf(&b, "%s%s=%q\n", id, voiceSuffix, doc.Voices[id])
	}
	if len(doc.Voices) > 0 && len(doc.Turns) > 0 {
		b.WriteString("\n")
	}
	for _, t := range doc.Turns {
		fmt.Fprintf(&b, "%s=%q\n", t.Voice, t.Text)
	}
	return b.String()
}

func sortedVoiceIDs(vt VoiceTable) []string {
	ids := make([]string, 0, len(vt))
	for id := range vt {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
