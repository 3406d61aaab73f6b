package feed

import (
	"regexp"
	"strings"
)

var (
	scriptBlock  = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	styleBlock   = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	lineBreak    = regexp.MustCompile(`(?i)<br\s*/?>`)
	paragraphEnd = regexp.MustCompile(`(?i)</p\s*>`)
	listItemOpen = regexp.MustCompile(`(?i)<li\b[^>]*>`)
	listItemEnd  = regexp.MustCompile(`(?i)</li\s*>`)
	anyTag       = regexp.MustCompile(`<[^>]+>`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
)

// StripHTML reduces an item description to plain text, keeping paragraph and
// list structure as newlines and "- " bullets. Script and style blocks are
// removed with their content.
func StripHTML(html string) string {
	text := scriptBlock.ReplaceAllString(html, "")
	text = styleBlock.ReplaceAllString(text, "")
	text = lineBreak.ReplaceAllString(text, "\n")
	text = paragraphEnd.ReplaceAllString(text, "\n\n")
	text = listItemOpen.ReplaceAllString(text, "- ")
	text = listItemEnd.ReplaceAllString(text, "\n")
	text = anyTag.ReplaceAllString(text, "")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
