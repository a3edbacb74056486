// Package textnorm rewrites text patterns that speech engines mispronounce
// (email addresses, URLs, phone numbers) into a spoken-out form.
package textnorm

import (
	"regexp"
	"strings"
)

// MinLength is the minimum number of characters a line must contain after
// normalization; shorter inputs are rejected before synthesis.
const MinLength = 3

var (
	emailPattern = regexp.MustCompile(`\b([a-zA-Z0-9._-]+)@([a-zA-Z0-9._-]+\.[a-zA-Z]{2,})\b`)
	urlPattern   = regexp.MustCompile(`(https?://)?([a-zA-Z0-9-]+(?:\.[a-zA-Z0-9-]+)*\.[a-zA-Z]{2,})(/[^\s]*)?`)
	phonePattern = regexp.MustCompile(`(\+?\d{1,3})?[\s.-]?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`)
)

// Normalize applies every enabled pass in a fixed order: emails, then URLs,
// then phone numbers. Each pass rewrites its own pattern only, so text
// produced by an earlier pass is never re-processed. Pure and deterministic.
func Normalize(text string) string {
	text = NormalizeEmails(text)
	text = NormalizeURLs(text)
	text = NormalizePhones(text)
	return text
}

// NormalizeEmails converts addresses to a speakable form,
// e.g. "john.doe@example.com" becomes "john dot doe at example dot com".
func NormalizeEmails(text string) string {
	return emailPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := emailPattern.FindStringSubmatch(m)
		local := sub[1]
		domain := sub[2]

		local = strings.ReplaceAll(local, ".", " dot ")
		local = strings.ReplaceAll(local, "_", " underscore ")
		local = strings.ReplaceAll(local, "-", " dash ")
		domain = strings.ReplaceAll(domain, ".", " dot ")

		return local + " at " + domain
	})
}

// NormalizeURLs converts URLs to a speakable form, spelling out the
// protocol and replacing separators,
// e.g. "https://www.example.com" becomes
// "H T T P S colon slash slash W W W dot example dot com".
func NormalizeURLs(text string) string {
	return urlPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := urlPattern.FindStringSubmatch(m)
		protocol := sub[1]
		domain := sub[2]
		path := sub[3]

		// Already-spoken text contains no dots, so a second pass
		// leaves it alone; bare words without a TLD never match.
		var b strings.Builder
		switch {
		case strings.HasPrefix(protocol, "https"):
			b.WriteString("H T T P S colon slash slash ")
		case strings.HasPrefix(protocol, "http"):
			b.WriteString("H T T P colon slash slash ")
		}
		if strings.HasPrefix(domain, "www.") {
			b.WriteString("W W W dot ")
			domain = domain[4:]
		}
		b.WriteString(strings.ReplaceAll(domain, ".", " dot "))
		if path != "" {
			trimmed := strings.TrimSuffix(path[1:], "/")
			b.WriteString(" slash ")
			b.WriteString(strings.ReplaceAll(trimmed, "/", " slash "))
		}
		return strings.TrimSpace(b.String())
	})
}

// NormalizePhones spells out phone numbers digit by digit,
// e.g. "+1-555-123-4567" becomes "plus 1 5 5 5 1 2 3 4 5 6 7".
func NormalizePhones(text string) string {
	return phonePattern.ReplaceAllStringFunc(text, func(m string) string {
		var parts []string
		for _, r := range m {
			switch {
			case r == '+':
				parts = append(parts, "plus")
			case r >= '0' && r <= '9':
				parts = append(parts, string(r))
			}
		}
		return strings.Join(parts, " ")
	})
}
