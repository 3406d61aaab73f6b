package feed

import (
	"reflect"
	"testing"
)

func TestParseXMLChannelAndItem(t *testing.T) {
	t.Parallel()
	xml := `<channel><title>Acme Jobs</title><link>http://x</link><item><title>Eng</title><link>http://x/1</link><category>Tech</category></item></channel>`

	got := ParseXML(xml)

	if got.Title != "Acme Jobs" {
		t.Fatalf("expected channel title %q, got %q", "Acme Jobs", got.Title)
	}
	if got.Link != "http://x" {
		t.Fatalf("expected channel link %q, got %q", "http://x", got.Link)
	}
	if got.Description != "" || got.LastBuildDate != nil {
		t.Fatalf("expected missing channel fields to default, got %q / %v", got.Description, got.LastBuildDate)
	}
	if len(got.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got.Items))
	}
	item := got.Items[0]
	if item.Title != "Eng" || item.Link != "http://x/1" {
		t.Fatalf("unexpected item %+v", item)
	}
	if !reflect.DeepEqual(item.Categories, []string{"Tech"}) {
		t.Fatalf("expected categories [Tech], got %v", item.Categories)
	}
}

func TestParseXMLPrefersChannelTags(t *testing.T) {
	t.Parallel()
	xml := `<?xml version="1.0"?>
<rss version="2.0"><item><title>Stray</title></item>
<channel>
  <title><![CDATA[Remote & Co]]></title>
  <description>Jobs &amp; more</description>
  <link>https://remote.example</link>
  <lastBuildDate>Mon, 06 May 2024 10:00:00 GMT</lastBuildDate>
  <item><title>Backend</title><link>https://remote.example/1</link></item>
</channel></rss>`

	got := ParseXML(xml)

	if got.Title != "Remote & Co" {
		t.Fatalf("expected CDATA channel title, got %q", got.Title)
	}
	if got.Description != "Jobs & more" {
		t.Fatalf("expected decoded description, got %q", got.Description)
	}
	if got.LastBuildDate == nil || *got.LastBuildDate != "Mon, 06 May 2024 10:00:00 GMT" {
		t.Fatalf("unexpected lastBuildDate %v", got.LastBuildDate)
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Items))
	}
}

func TestParseXMLItemDiscardRule(t *testing.T) {
	t.Parallel()
	xml := `<channel><title>T</title>
<item><description>orphan</description></item>
<item><link>https://jobs.example/only-link</link></item>
<item><title>Only title</title></item>
</channel>`

	got := ParseXML(xml)

	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(got.Items), got.Items)
	}
	if got.Items[0].Title != "" || got.Items[0].Link != "https://jobs.example/only-link" {
		t.Fatalf("expected link-only item with empty title, got %+v", got.Items[0])
	}
	if got.Items[1].Title != "Only title" || got.Items[1].Link != "" {
		t.Fatalf("expected title-only item with empty link, got %+v", got.Items[1])
	}
}

func TestParseXMLItemFields(t *testing.T) {
	t.Parallel()
	xml := `<rss xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:dc="http://purl.org/dc/elements/1.1/"><channel><title>Board</title>
<item>
  <title>Go Developer</title>
  <link>https://jobs.example/go</link>
  <description><![CDATA[<p>Write <b>Go</b></p>]]></description>
  <content>plain content</content>
  <content:encoded><![CDATA[<p>Full posting</p>]]></content:encoded>
  <pubDate>Tue, 07 May 2024 09:00:00 +0000</pubDate>
  <guid isPermaLink="false">job-42</guid>
  <dc:creator>Hiring Team</dc:creator>
  <category domain="tags">Remote</category>
  <category> </category>
  <category><![CDATA[Backend]]></category>
  <salary>100k&#x2013;120k</salary>
  <enclosure url="https://jobs.example/logo.png" type="image/png"/>
</item></channel></rss>`

	got := ParseXML(xml)
	if len(got.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got.Items))
	}
	item := got.Items[0]

	checks := map[string]struct {
		got  *string
		want string
	}{
		"description": {item.Description, "<p>Write <b>Go</b></p>"},
		"content":     {item.Content, "<p>Full posting</p>"},
		"pubDate":     {item.PubDate, "Tue, 07 May 2024 09:00:00 +0000"},
		"guid":        {item.GUID, "job-42"},
		"author":      {item.Author, "Hiring Team"},
	}
	for name, c := range checks {
		if c.got == nil {
			t.Fatalf("expected %s to be present", name)
		}
		if *c.got != c.want {
			t.Fatalf("expected %s %q, got %q", name, c.want, *c.got)
		}
	}
	if !reflect.DeepEqual(item.Categories, []string{"Remote", "Backend"}) {
		t.Fatalf("expected categories [Remote Backend], got %v", item.Categories)
	}
	if item.Extra["salary"] != "100k–120k" {
		t.Fatalf("expected extra salary tag, got %v", item.Extra)
	}
	if _, ok := item.Extra["enclosure"]; ok {
		t.Fatalf("expected self-closing tags to be ignored, got %v", item.Extra)
	}
}

func TestParseXMLOptionalFieldsDistinguishMissingFromEmpty(t *testing.T) {
	t.Parallel()
	got := ParseXML(`<item><title>A</title><description></description></item>`)
	if len(got.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got.Items))
	}
	item := got.Items[0]
	if item.Description == nil || *item.Description != "" {
		t.Fatalf("expected empty but present description, got %v", item.Description)
	}
	if item.GUID != nil || item.Author != nil || item.Content != nil || item.PubDate != nil {
		t.Fatalf("expected missing tags to be nil, got %+v", item)
	}
	if item.Categories != nil {
		t.Fatalf("expected nil categories, got %v", item.Categories)
	}
	if item.Extra != nil {
		t.Fatalf("expected nil extra, got %v", item.Extra)
	}
}

func TestParseXMLContentFallsBackToPlainTag(t *testing.T) {
	t.Parallel()
	got := ParseXML(`<item><title>A</title><content>body</content><author>jane@example.com</author></item>`)
	item := got.Items[0]
	if item.Content == nil || *item.Content != "body" {
		t.Fatalf("expected plain content fallback, got %v", item.Content)
	}
	if item.Author == nil || *item.Author != "jane@example.com" {
		t.Fatalf("expected author, got %v", item.Author)
	}
}

func TestParseXMLToleratesGarbage(t *testing.T) {
	t.Parallel()
	inputs := []string{"", "not xml at all", "<channel><title>Unclosed", "<item><title>x</item>"}
	for _, in := range inputs {
		got := ParseXML(in)
		if got.Title != "" {
			t.Fatalf("ParseXML(%q): expected empty title, got %q", in, got.Title)
		}
		if len(got.Items) != 0 {
			t.Fatalf("ParseXML(%q): expected no items, got %d", in, len(got.Items))
		}
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"A &amp; B &#65;":                 "A & B A",
		"  &lt;b&gt; &quot;q&quot; &apos;": `<b> "q" '`,
		"&#x48;&#X69;":                    "Hi",
		"&amp;lt;":                        "&lt;",
		"&nbsp; &#0; &#xZZ;":              "&nbsp; &#0; &#xZZ;",
		"\n plain \t":                     "plain",
	}
	for in, want := range cases {
		if got := cleanText(in); got != want {
			t.Fatalf("cleanText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractTagIsCaseInsensitiveAndExact(t *testing.T) {
	t.Parallel()
	block := `<PubDate>today</PubDate><content:encoded>rich</content:encoded>`
	if got := extractTag(block, "pubDate"); got == nil || *got != "today" {
		t.Fatalf("expected case-insensitive match, got %v", got)
	}
	if got := extractTag(block, "content"); got != nil {
		t.Fatalf("expected content not to match content:encoded, got %q", *got)
	}
}

func TestParseXMLIgnoresMarkupInsideKnownChildren(t *testing.T) {
	t.Parallel()
	got := ParseXML(`<item><title>Go</title>` +
		`<description><p>Write <b>Go</b> &amp; more</p></description>` +
		`<content><em>remote</em> friendly</content></item>`)
	if len(got.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got.Items))
	}
	item := got.Items[0]
	if item.Extra != nil {
		t.Fatalf("expected no extra tags from description markup, got %v", item.Extra)
	}
	if item.Description == nil || *item.Description != "<p>Write <b>Go</b> & more</p>" {
		t.Fatalf("expected raw description markup, got %v", item.Description)
	}
}

func TestParseXMLSkipsNestedChildrenOfUnknownTags(t *testing.T) {
	t.Parallel()
	got := ParseXML(`<item><title>Go</title>` +
		`<company><name>Acme</name></company><level>senior</level></item>`)
	item := got.Items[0]
	if len(item.Extra) != 1 || item.Extra["level"] != "senior" {
		t.Fatalf("expected only the level tag, got %v", item.Extra)
	}
}
