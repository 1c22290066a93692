// Package digest maintains the bounded long-term memory digest: a plain-text
// buffer made of optional header lines followed by "- " fact bullets.
package digest

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the default soft cap of the digest in characters.
const DefaultMaxChars = 6000

// approxFactChars is the assumed width of one fact line; the number of facts
// kept on compaction is cap/approxFactChars.
const approxFactChars = 80

// FactLine formats a digest fact for a minute-precision timestamp.
func FactLine(minuteStamp, summary string) string {
	return "- " + minuteStamp + ": " + summary
}

// Fold appends fact to current. It reports false, leaving current untouched,
// when fact is blank or already present verbatim. The result is compacted to
// maxChars when it grows past the cap.
func Fold(current, fact string, maxChars int) (string, bool) {
	fact = strings.TrimSpace(fact)
	if fact == "" || strings.Contains(current, fact) {
		return current, false
	}

	var updated string
	if current == "" {
		updated = fact + "\n"
	} else {
		updated = strings.TrimRight(current, " \t\r\n") + "\n" + fact + "\n"
	}

	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if utf8.RuneCountInString(updated) > maxChars {
		updated = Compact(updated, maxChars)
	}
	return updated, true
}

// Compact shrinks content to at most maxChars characters. Header lines (those
// before the first "- " bullet) are preserved, and at most maxChars/80 of the
// most recent fact lines are kept; older facts are dropped first until the
// result fits. Truncation is the last resort.
func Compact(content string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if utf8.RuneCountInString(content) <= maxChars {
		return content
	}

	var header, facts []string
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		if len(facts) == 0 && !strings.HasPrefix(strings.TrimSpace(line), "- ") {
			header = append(header, line)
			continue
		}
		facts = append(facts, line)
	}
	for len(header) > 0 && strings.TrimSpace(header[len(header)-1]) == "" {
		header = header[:len(header)-1]
	}

	keep := maxChars / approxFactChars
	if keep < 1 {
		keep = 1
	}
	if len(facts) > keep {
		facts = facts[len(facts)-keep:]
	}

	render := func(facts []string) string {
		parts := make([]string, 0, len(header)+1+len(facts))
		parts = append(parts, header...)
		if len(header) > 0 {
			parts = append(parts, "")
		}
		parts = append(parts, facts...)
		return strings.Join(parts, "\n") + "\n"
	}

	result := render(facts)
	for utf8.RuneCountInString(result) > maxChars && len(facts) > 1 {
		facts = facts[1:]
		result = render(facts)
	}
	return truncateRunes(result, maxChars)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
