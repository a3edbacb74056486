package textnorm

import "testing"

func TestNormalizeEmails(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"contact john.doe@example.com today", "contact john dot doe at example dot com today"},
		{"a_b-c@mail.co", "a underscore b dash c at mail dot co"},
		{"no address here", "no address here"},
	}
	for _, tc := range cases {
		if got := NormalizeEmails(tc.in); got != tc.want {
			t.Fatalf("NormalizeEmails(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeEmailsIdempotent(t *testing.T) {
	in := "write to john.doe@example.com or jane_r@test.org"
	once := NormalizeEmails(in)
	twice := NormalizeEmails(once)
	if once != twice {
		t.Fatalf("not idempotent: %q vs %q", once, twice)
	}
}

func TestNormalizeURLs(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"visit https://www.example.com now", "visit H T T P S colon slash slash W W W dot example dot com now"},
		{"see http://example.org", "see H T T P colon slash slash example dot org"},
		{"plain example.com works", "plain example dot com works"},
		{"docs at example.com/a/b", "docs at example dot com slash a slash b"},
	}
	for _, tc := range cases {
		if got := NormalizeURLs(tc.in); got != tc.want {
			t.Fatalf("NormalizeURLs(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizePhones(t *testing.T) {
	got := NormalizePhones("call +1-555-123-4567 now")
	want := "call plus 1 5 5 5 1 2 3 4 5 6 7 now"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"email john.doe@example.com and browse https://www.example.com",
		"call 555-123-4567",
		"nothing special at all",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); once != twice {
			t.Fatalf("Normalize not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}
