package generator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/sitebrief/llmstxt-crawler/internal/crawl"
)

// nonContentSegments are leading path segments that mark asset directories
// rather than documentation; pages under them are kept out of the
// generated documents.
var nonContentSegments = map[string]struct{}{
	"assets": {}, "static": {}, "images": {}, "css": {}, "js": {},
}

// Documents is the rendered pair of llms.txt artifacts plus their content
// digests.
type Documents struct {
	Summary       string
	SummaryDigest string
	Full          string
	FullDigest    string
}

// Assemble renders llms.txt and llms-full.txt from ordered pages and their
// digests. Both documents share a header derived from the seed URL, so two
// runs over the same pages produce byte-identical output.
func Assemble(seedURL string, pages []crawl.PageContent, digests []crawl.PageDigest) Documents {
	domain := hostOf(seedURL)
	header := fmt.Sprintf("# %s\n\n> Documentation and content from %s\n\n## Documentation\n\n",
		siteTitle(domain), domain)

	var summary, full strings.Builder
	summary.WriteString(header)
	full.WriteString(header)

	for i, page := range pages {
		if !contentPage(page.URL) {
			continue
		}
		digest := digests[i]
		fmt.Fprintf(&summary, "- [%s](%s): %s\n", digest.Title, page.URL, digest.Description)

		fmt.Fprintf(&full, "### %s\nSource: %s\n\n", digest.Title, page.URL)
		body := strings.TrimSpace(page.Body)
		if body == "" {
			body = digest.Description
		}
		full.WriteString(body)
		full.WriteString("\n\n")
	}

	summaryText := summary.String()
	fullText := full.String()
	return Documents{
		Summary:       summaryText,
		SummaryDigest: digestOf(summaryText),
		Full:          fullText,
		FullDigest:    digestOf(fullText),
	}
}

// contentPage reports whether a URL points at documentation content rather
// than a site asset directory.
func contentPage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return true
	}
	first := strings.ToLower(strings.SplitN(path, "/", 2)[0])
	_, skip := nonContentSegments[first]
	return !skip
}

// siteTitle derives a display title from the crawl domain: the www prefix
// and the trailing TLD are dropped and the remainder is capitalized, so
// "www.langchain.com" becomes "Langchain".
func siteTitle(domain string) string {
	host := strings.TrimPrefix(domain, "www.")
	if idx := strings.LastIndex(host, "."); idx > 0 {
		host = host[:idx]
	}
	host = strings.NewReplacer("-", " ", ".", " ").Replace(host)
	title := capitalizeWords(host)
	if title == "" {
		return domain
	}
	return title
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

func digestOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
