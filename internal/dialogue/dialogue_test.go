package dialogue

import (
	"errors"
	"reflect"
	"testing"
)

const sampleDoc = `voice1_wav="voices/a.wav"
voice2_wav="voices/b.wav"

voice1="Hi there!"
voice2="Hello!"
voice1="How are you?"
`

func TestParseSample(t *testing.T) {
	doc, err := Parse(sampleDoc, Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Voices) != 2 {
		t.Fatalf("expected 2 voices, got %d", len(doc.Voices))
	}
	if doc.Voices["voice1"] != "voices/a.wav" {
		t.Fatalf("voice1 path = %q", doc.Voices["voice1"])
	}
	if len(doc.Turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(doc.Turns))
	}
	want := Turn{Voice: "voice2", Text: "Hello!", Index: 1}
	if doc.Turns[1] != want {
		t.Fatalf("turn 1 = %+v, want %+v", doc.Turns[1], want)
	}
}

func TestParseVoiceDeclaredAfterUse(t *testing.T) {
	doc, err := Parse("alice=\"Hi!\"\nalice_wav=\"voices/alice.wav\"\n", Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Voices["alice"] != "voices/alice.wav" {
		t.Fatalf("voice table not resolved before validation")
	}
}

func TestParseDuplicateVoiceLastWins(t *testing.T) {
	doc, err := Parse("v_wav=\"old.wav\"\nv_wav=\"new.wav\"\nv=\"Hello world\"\n", Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Voices["v"] != "new.wav" {
		t.Fatalf("expected last declaration to win, got %q", doc.Voices["v"])
	}
}

func TestParseUnknownVoice(t *testing.T) {
	_, err := Parse("ghost=\"Who said that?\"\n", Options{})
	if !errors.Is(err, ErrUnknownVoice) {
		t.Fatalf("expected ErrUnknownVoice, got %v", err)
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %T", err)
	}
	if perr.Line != 1 {
		t.Fatalf("expected line 1, got %d", perr.Line)
	}
}

func TestParseDefaultVoiceOptIn(t *testing.T) {
	doc, err := Parse("ghost=\"No clone for me\"\n", Options{AllowDefaultVoice: true})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(doc.Turns))
	}
	if _, ok := doc.Voices["ghost"]; ok {
		t.Fatal("ghost should not be in the voice table")
	}
}

func TestParseMalformedQuoting(t *testing.T) {
	_, err := Parse("v_wav=\"a.wav\"\nv=\"broken\n", Options{})
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if perr.Line != 2 {
		t.Fatalf("expected line 2, got %d", perr.Line)
	}

	_, err = Parse("v_wav=\"a.wav\"\nv=\"has \"embedded\" quotes\"\n", Options{})
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError for embedded quotes, got %v", err)
	}
}

func TestParseIgnoresNoise(t *testing.T) {
	doc, err := Parse("# a comment\nrandom prose line\nv_wav=\"a.wav\"\nv=\"Hello there\"\n", Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(doc.Turns))
	}
}

func TestParseEmptyDocument(t *testing.T) {
	if _, err := Parse("\n\n", Options{}); !errors.Is(err, ErrNoTurns) {
		t.Fatalf("expected ErrNoTurns, got %v", err)
	}
	if _, err := Parse("v_wav=\"a.wav\"\n", Options{}); !errors.Is(err, ErrNoTurns) {
		t.Fatalf("declarations only should be ErrNoTurns, got %v", err)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	doc, err := Parse(sampleDoc, Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	again, err := Parse(Serialize(doc), Options{})
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if !reflect.DeepEqual(doc.Turns, again.Turns) {
		t.Fatalf("turns differ after round trip:\n%+v\n%+v", doc.Turns, again.Turns)
	}
	if !reflect.DeepEqual(doc.Voices, again.Voices) {
		t.Fatalf("voice tables differ after round trip")
	}
}
