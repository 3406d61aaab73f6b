package feed

import (
	"regexp"
	"strings"
)

var (
	itemPattern       = regexp.MustCompile(`(?is)<item(?:\s[^>]*)?>(.*?)</item\s*>`)
	channelOpen       = regexp.MustCompile(`(?i)<channel(?:\s[^>]*)?>`)
	childOpenPattern  = regexp.MustCompile(`<([A-Za-z_][\w.:-]*)(?:\s[^>]*)?>`)
	cdataSection      = regexp.MustCompile(`(?s)<!\[CDATA\[.*?\]\]>`)
	knownItemChildren = map[string]bool{
		"title":           true,
		"link":            true,
		"description":     true,
		"content":         true,
		"content:encoded": true,
		"pubdate":         true,
		"guid":            true,
		"author":          true,
		"dc:creator":      true,
		"category":        true,
	}
)

// ParseXML decodes an RSS document without validating it. Missing channel
// fields are empty, and items with neither a title nor a link are dropped.
func ParseXML(xml string) Feed {
	// Channel fields are searched from <channel> on, so an item's <title> is
	// never mistaken for the channel's when the channel comes later.
	channel := xml
	if loc := channelOpen.FindStringIndex(xml); loc != nil {
		channel = xml[loc[0]:]
	}

	feed := Feed{
		Title:         valueOrEmpty(extractTag(channel, "title")),
		Description:   valueOrEmpty(extractTag(channel, "description")),
		Link:          valueOrEmpty(extractTag(channel, "link")),
		LastBuildDate: extractTag(xml, "lastBuildDate"),
	}

	for _, m := range itemPattern.FindAllStringSubmatch(xml, -1) {
		if item, ok := parseItem(m[1]); ok {
			feed.Items = append(feed.Items, item)
		}
	}
	return feed
}

func parseItem(block string) (Item, bool) {
	title := extractTag(block, "title")
	link := extractTag(block, "link")
	if title == nil && link == nil {
		return Item{}, false
	}

	item := Item{
		Title:       valueOrEmpty(title),
		Link:        valueOrEmpty(link),
		Description: extractTag(block, "description"),
		PubDate:     extractTag(block, "pubDate"),
		GUID:        extractTag(block, "guid"),
		Author:      extractTag(block, "author"),
		Content:     extractTag(block, "content:encoded"),
	}
	if item.Content == nil {
		item.Content = extractTag(block, "content")
	}
	if item.Author == nil {
		item.Author = extractTag(block, "dc:creator")
	}

	for _, raw := range extractAll(block, "category") {
		if category := cleanText(unwrapCDATA(raw)); category != "" {
			item.Categories = append(item.Categories, category)
		}
	}

	item.Extra = extraTags(block)
	return item, true
}

// extraTags collects the text of direct children with no dedicated field.
// Each child is skipped as a whole, so markup inside a description never
// surfaces as an extra tag. Children with nested markup are ignored.
func extraTags(block string) map[string]string {
	// CDATA is blanked to spaces so offsets in scan line up with block.
	scan := cdataSection.ReplaceAllStringFunc(block, func(s string) string {
		return strings.Repeat(" ", len(s))
	})
	var extra map[string]string
	for pos := 0; pos < len(scan); {
		open := childOpenPattern.FindStringSubmatchIndex(scan[pos:])
		if open == nil {
			break
		}
		start := pos + open[0]
		name := scan[pos+open[2] : pos+open[3]]
		span := tagPattern(name).FindStringSubmatchIndex(scan[start:])
		if span == nil || span[0] != 0 {
			// Self-closing or unterminated: step over the opening tag only.
			pos += open[1]
			continue
		}
		pos = start + span[1]

		if knownItemChildren[strings.ToLower(name)] {
			continue
		}
		if _, seen := extra[name]; seen {
			continue
		}
		text := unwrapCDATA(block[start+span[2] : start+span[3]])
		if strings.Contains(text, "<") {
			continue
		}
		if extra == nil {
			extra = map[string]string{}
		}
		extra[name] = cleanText(text)
	}
	return extra
}

func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
