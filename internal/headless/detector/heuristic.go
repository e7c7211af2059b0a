// Package detector decides when a page needs a headless re-fetch.
package detector

import (
	"bytes"
	"strings"

	"github.com/sitebrief/llmstxt-crawler/internal/crawl"
)

// Heuristic promotes pages whose static HTML looks like a JavaScript
// shell: an empty or tiny body dominated by scripts, or documents carrying
// SPA framework markers.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a detector. threshold 0 picks a default of 2048
// bytes.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
}

// ShouldPromote decides whether a headless fetch is required.
func (h *Heuristic) ShouldPromote(resp crawl.FetchResponse) bool {
	if resp.StatusCode != 200 {
		return false
	}
	if len(resp.Body) == 0 {
		return true
	}
	if len(resp.Body) < h.BodyLengthThreshold && scriptHeavy(resp.Body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(resp.Body, marker) {
			return true
		}
	}
	return false
}

// scriptHeavy reports whether script tags cover at least a quarter of the
// document.
func scriptHeavy(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	covered := 0
	pos := 0
	for {
		start := strings.Index(lower[pos:], "<script")
		if start == -1 {
			break
		}
		start += pos
		end := strings.Index(lower[start:], "</script>")
		if end == -1 {
			covered += total - start
			break
		}
		end = start + end + len("</script>")
		covered += end - start
		pos = end
	}
	return covered > 0 && covered*100/total >= 25
}
