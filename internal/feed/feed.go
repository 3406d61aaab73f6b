// Package feed decodes RSS 2.0-style documents pulled from job boards.
//
// The default decoder is a permissive tag scanner rather than an XML parser:
// job boards routinely publish feeds that are not well formed, and a missing
// or broken tag should cost one field, not the whole feed. A strict decoder
// backed by gofeed is available behind the same Decoder interface.
package feed

import (
	"context"
	"time"
)

// Feed is the channel-level view of a decoded document.
type Feed struct {
	Title         string
	Description   string
	Link          string
	LastBuildDate *string
	Items         []Item
}

// Item is a single entry. Optional fields are nil when the tag is missing and
// point to "" when the tag is present but empty.
type Item struct {
	Title       string
	Link        string
	Description *string
	PubDate     *string
	GUID        *string
	Author      *string
	Content     *string
	// PublishedAt is set by decoders that parse dates themselves. When nil,
	// callers fall back to parsing PubDate.
	PublishedAt *time.Time
	// Categories is nil when the item has no non-empty category.
	Categories []string
	// Extra holds the text of child tags the decoder does not map to a field,
	// keyed by tag name as written in the document.
	Extra map[string]string
}

// Decoder turns a fetched document into a Feed.
type Decoder interface {
	Decode(ctx context.Context, body string) (Feed, error)
}

// Permissive decodes with ParseXML. It never returns an error.
type Permissive struct{}

func (Permissive) Decode(ctx context.Context, body string) (Feed, error) {
	_ = ctx
	return ParseXML(body), nil
}
