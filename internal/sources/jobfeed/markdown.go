package jobfeed

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/jobscout/ingest/internal/core"
	"github.com/jobscout/ingest/internal/feed"
)

// BodyFormat is how a posting's description and content are stored on a listing.
type BodyFormat int

const (
	BodyRaw BodyFormat = iota
	BodyText
	BodyMarkdown
)

// FormatFor picks the body format configured for a source. Markdown wins over
// plain text when both are set.
func FormatFor(source Source) BodyFormat {
	switch {
	case source.Markdown:
		return BodyMarkdown
	case source.StripHTML:
		return BodyText
	default:
		return BodyRaw
	}
}

// Renderer turns posting bodies into the format a source asks for. One
// converter is shared by all fetches; conversions are serialised on it.
type Renderer struct {
	mu   sync.Mutex
	conv *converter.Converter
}

func NewRenderer() *Renderer {
	return &Renderer{conv: converter.NewConverter(
		converter.WithEscapeMode("smart"),
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)}
}

// Render formats body. A posting that fails markdown conversion is stored as
// plain text instead of being dropped.
func (r *Renderer) Render(ctx context.Context, format BodyFormat, body string) string {
	if body == "" {
		return ""
	}
	switch format {
	case BodyMarkdown:
		md, err := r.Markdown(body)
		if err == nil {
			return md
		}
		core.LoggerFromContext(ctx).Warn("markdown conversion failed, stripping html", slog.String("error", err.Error()))
		return feed.StripHTML(body)
	case BodyText:
		return feed.StripHTML(body)
	default:
		return body
	}
}

// Markdown converts an HTML posting body. Bodies without markup are returned
// as is so job titles and salaries are not escaped.
func (r *Renderer) Markdown(html string) (string, error) {
	if !strings.Contains(html, "<") {
		return html, nil
	}
	r.mu.Lock()
	md, err := r.conv.ConvertString(html)
	r.mu.Unlock()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}
