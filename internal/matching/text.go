package matching

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// hasToken reports whether token occurs in s at a word boundary. The character
// before the match must not be a letter or digit, so "ER+" does not match inside
// "HER+" and "met" does not match inside "metastatic". The trailing boundary is
// only enforced when the token itself ends in a letter or digit.
func hasToken(s, token string) bool {
	return tokenIndex(s, token) >= 0
}

// tokenIndex returns the byte offset of the first word-boundary match of token
// in s, or -1.
func tokenIndex(s, token string) int {
	if token == "" {
		return -1
	}
	last, _ := utf8.DecodeLastRuneInString(token)
	checkTail := isWordRune(last)

	offset := 0
	for {
		i := strings.Index(s[offset:], token)
		if i < 0 {
			return -1
		}
		start := offset + i
		end := start + len(token)

		headOK := true
		if start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(s[:start])
			headOK = !isWordRune(prev)
		}
		tailOK := true
		if checkTail && end < len(s) {
			next, _ := utf8.DecodeRuneInString(s[end:])
			tailOK = !isWordRune(next)
		}
		if headOK && tailOK {
			return start
		}
		offset = start + 1
	}
}

// hasAnyToken reports whether any token occurs at a word boundary
func hasAnyToken(s string, tokens ...string) bool {
	for _, t := range tokens {
		if hasToken(s, t) {
			return true
		}
	}
	return false
}

// containsAny is a plain substring check over several needles
func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// hasBareToken finds token after removing longer phrases that embed it, e.g.
// "ER-" once "ER-positive" is removed.
func hasBareToken(s, token string, embedding ...string) bool {
	for _, e := range embedding {
		s = strings.ReplaceAll(s, e, " ")
	}
	return hasToken(s, token)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

var thresholdPattern = regexp.MustCompile(`(?:≥|>=)\s*(\d{1,3})`)

// parseThreshold extracts the first "≥N" or ">=N" percentage from s
func parseThreshold(s string) (int, bool) {
	m := thresholdPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
