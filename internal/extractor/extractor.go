// Package extractor converts fetched HTML into normalized page content.
package extractor

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"

	"github.com/sitebrief/llmstxt-crawler/internal/crawl"
)

// Tags stripped before the body is converted; they carry navigation and
// presentation, not content.
var boilerplateSelector = "script, style, noscript, iframe, nav, header, footer, aside"

// Containers tried in order when locating the main content region. The
// first match wins; pages without any fall back to <body>.
var contentSelector = strings.Join([]string{
	"main", "article", "[role='main']",
	".main-content", ".article-content", ".post-content", ".entry-content",
	".page-content", "#main-content", "#content", "#main", ".content", ".main",
}, ", ")

var blankLines = regexp.MustCompile(`\n{3,}`)

// Extractor is a deterministic, pure HTML-to-content transformation.
// Extract never fails: malformed markup degrades to an empty body rather
// than aborting the job.
type Extractor struct {
	conv *md.Converter
}

// New builds an Extractor with a GitHub-flavored markdown converter.
func New() *Extractor {
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	return &Extractor{conv: conv}
}

// Extract produces the page title, normalized markdown body, and outbound
// link candidates for pageURL. Link candidates are resolved to absolute
// form but not filtered; admission is the frontier's job.
func (e *Extractor) Extract(rawHTML []byte, pageURL string) crawl.PageContent {
	content := crawl.PageContent{URL: pageURL}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return content
	}

	content.Links = collectLinks(doc, pageURL)
	content.Title = extractTitle(doc)

	doc.Find(boilerplateSelector).Remove()
	region := doc.Find(contentSelector).First()
	if region.Length() == 0 {
		region = doc.Find("body")
	}
	if region.Length() == 0 {
		return content
	}
	content.Body = normalize(e.conv.Convert(region))
	return content
}

func extractTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func collectLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}

// normalize trims trailing space per line and collapses runs of blank
// lines so repeated extraction yields byte-identical output.
func normalize(markdown string) string {
	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := strings.Join(lines, "\n")
	out = blankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
