package feed

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	tagPatterns sync.Map // tag name -> *regexp.Regexp

	cdataPattern  = regexp.MustCompile(`(?s)^\s*<!\[CDATA\[(.*?)\]\]>\s*$`)
	entityPattern = regexp.MustCompile(`&(?:lt|gt|amp|quot|apos|#[0-9]+|#[xX][0-9a-fA-F]+);`)
)

// tagPattern matches the first <tag attrs>content</tag>, case-insensitively.
// The name must be followed by whitespace or '>' so "content" does not match
// "<content:encoded>".
func tagPattern(tag string) *regexp.Regexp {
	if re, ok := tagPatterns.Load(tag); ok {
		return re.(*regexp.Regexp)
	}
	name := regexp.QuoteMeta(tag)
	re := regexp.MustCompile(`(?is)<` + name + `(?:\s[^>]*)?>(.*?)</` + name + `\s*>`)
	actual, _ := tagPatterns.LoadOrStore(tag, re)
	return actual.(*regexp.Regexp)
}

// extractTag returns the cleaned text of the first tag, or nil if it is absent.
func extractTag(block, tag string) *string {
	m := tagPattern(tag).FindStringSubmatch(block)
	if m == nil {
		return nil
	}
	text := cleanText(unwrapCDATA(m[1]))
	return &text
}

// extractAll returns the raw (uncleaned, CDATA-wrapped) content of every tag.
func extractAll(block, tag string) []string {
	matches := tagPattern(tag).FindAllStringSubmatch(block, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func unwrapCDATA(s string) string {
	if m := cdataPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// cleanText decodes the five predefined XML entities and numeric character
// references, then trims surrounding whitespace. Decoding is a single pass, so
// "&amp;lt;" becomes "&lt;" and not "<".
func cleanText(s string) string {
	if strings.IndexByte(s, '&') >= 0 {
		s = entityPattern.ReplaceAllStringFunc(s, decodeEntity)
	}
	return strings.TrimSpace(s)
}

func decodeEntity(entity string) string {
	switch entity {
	case "&lt;":
		return "<"
	case "&gt;":
		return ">"
	case "&amp;":
		return "&"
	case "&quot;":
		return `"`
	case "&apos;":
		return "'"
	}

	ref := entity[2 : len(entity)-1]
	base := 10
	if ref[0] == 'x' || ref[0] == 'X' {
		ref = ref[1:]
		base = 16
	}
	code, err := strconv.ParseInt(ref, base, 32)
	if err != nil || code == 0 || !utf8.ValidRune(rune(code)) {
		return entity
	}
	return string(rune(code))
}
