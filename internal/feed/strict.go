package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	DecoderPermissive = "permissive"
	DecoderStrict     = "strict"
)

// Strict decodes with gofeed, which also understands Atom and JSON Feed but
// rejects documents it cannot parse. It is safe for concurrent use.
type Strict struct{}

func NewStrict() *Strict {
	return &Strict{}
}

func (s *Strict) Decode(ctx context.Context, body string) (Feed, error) {
	// gofeed.Parser keeps per-parse state, so each call gets its own.
	parsed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return Feed{}, fmt.Errorf("strict decode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Feed{}, err
	}

	out := Feed{
		Title:         parsed.Title,
		Description:   parsed.Description,
		Link:          parsed.Link,
		LastBuildDate: optional(parsed.Updated),
	}
	for _, entry := range parsed.Items {
		if entry == nil || (entry.Title == "" && entry.Link == "") {
			continue
		}
		item := Item{
			Title:       strings.TrimSpace(entry.Title),
			Link:        strings.TrimSpace(entry.Link),
			Description: optional(entry.Description),
			PubDate:     optional(entry.Published),
			GUID:        optional(entry.GUID),
			Content:     optional(entry.Content),
			PublishedAt: publishedAt(entry),
		}
		if entry.Author != nil {
			name := entry.Author.Name
			if name == "" {
				name = entry.Author.Email
			}
			item.Author = optional(name)
		}
		for _, category := range entry.Categories {
			if category = strings.TrimSpace(category); category != "" {
				item.Categories = append(item.Categories, category)
			}
		}
		if len(entry.Custom) > 0 {
			item.Extra = make(map[string]string, len(entry.Custom))
			for k, v := range entry.Custom {
				item.Extra[k] = v
			}
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

// DecoderByName resolves the decoder names accepted in configuration.
// An empty name selects the permissive decoder.
func DecoderByName(name string) (Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DecoderPermissive:
		return Permissive{}, nil
	case DecoderStrict:
		return NewStrict(), nil
	default:
		return nil, fmt.Errorf("unknown feed decoder %q (expected %s or %s)", name, DecoderPermissive, DecoderStrict)
	}
}

// publishedAt prefers gofeed's parsed publish time and falls back to the
// updated time.
func publishedAt(entry *gofeed.Item) *time.Time {
	for _, t := range []*time.Time{entry.PublishedParsed, entry.UpdatedParsed} {
		if t != nil && !t.IsZero() {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
