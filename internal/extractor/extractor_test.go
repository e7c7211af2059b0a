package extractor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html>
<html>
<head><title>Getting Started</title><script>var x =1;</script></head>
<body>
<nav><a href="/everything">All pages</a></nav>
<header>Site header</header>
<main>
<h1>Getting Started</h1>
<p>Install the   tool and run it.</p>
<a href="/docs/install">Install guide</a>
<a href="https://other.org/external">Elsewhere</a>
<a href="#section">Anchor</a>
<a href="mailto:team@example.com">Mail</a>
</main>
<footer>© example</footer>
</body>
</html>`

func TestExtract_TitleBodyAndLinks(t *testing.T) {
	t.Parallel()
	e := New()
	page := e.Extract([]byte(samplePage), "https://example.com/docs")

	require.Equal(t, "Getting Started", page.Title)
	require.Contains(t, page.Body, "Install the tool and run it.")
	require.NotContains(t, page.Body, "Site header")
	require.NotContains(t, page.Body, "example</footer>")
	require.NotContains(t, page.Body, "var x")

	// Links are resolved absolute and unfiltered; anchors and mailto are
	// dropped at collection time.
	require.Contains(t, page.Links, "https://example.com/docs/install")
	require.Contains(t, page.Links, "https://other.org/external")
	require.Contains(t, page.Links, "https://example.com/everything")
	for _, l := range page.Links {
		require.NotContains(t, l, "mailto:")
		require.NotContains(t, l, "#section")
	}
}

func TestExtract_Idempotent(t *testing.T) {
	t.Parallel()
	e := New()
	first := e.Extract([]byte(samplePage), "https://example.com/docs")
	second := e.Extract([]byte(samplePage), "https://example.com/docs")
	require.Equal(t, first, second)
}

func TestExtract_MalformedHTMLDoesNotPanic(t *testing.T) {
	t.Parallel()
	e := New()
	page := e.Extract([]byte("<div><p>unclosed <b>tags<table><tr>"), "https://example.com")
	require.Equal(t, "https://example.com", page.URL)
	// Best effort: whatever survives the parser is fine, no error surface.
}

func TestExtract_EmptyInput(t *testing.T) {
	t.Parallel()
	e := New()
	page := e.Extract(nil, "https://example.com")
	require.Empty(t, page.Body)
	require.Empty(t, page.Title)
	require.Empty(t, page.Links)
}

func TestExtract_FallsBackToBodyAndH1(t *testing.T) {
	t.Parallel()
	e := New()
	page := e.Extract([]byte("<html><body><h1>Only Heading</h1><p>text</p></body></html>"), "https://example.com")
	require.Equal(t, "Only Heading", page.Title)
	require.Contains(t, page.Body, "text")
}
