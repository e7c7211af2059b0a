// Package frontier implements the per-job URL frontier: a deduplicating,
// filterable queue of discovered URLs with a hard page budget.
package frontier

import (
	"net/url"
	"strings"
	"sync"
)

// Asset and binary suffixes that are never worth crawling, regardless of
// user filters.
var excludedExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".webp": {},
	".svg": {}, ".ico": {}, ".css": {}, ".js": {}, ".woff": {}, ".woff2": {},
	".ttf": {}, ".eot": {}, ".otf": {}, ".pdf": {}, ".doc": {}, ".docx": {},
	".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {}, ".zip": {}, ".rar": {},
	".tar": {}, ".gz": {}, ".7z": {}, ".mp3": {}, ".mp4": {}, ".avi": {},
	".mov": {}, ".wmv": {}, ".flv": {}, ".xml": {}, ".json": {}, ".txt": {},
	".csv": {},
}

// Entry is a URL ready to be fetched, with its discovery depth.
type Entry struct {
	URL   string
	Depth int
}

// Frontier owns the set of seen URLs for one job and guarantees each URL
// is dequeued at most once. All methods are safe for concurrent use, but
// the pipeline funnels Offer/Take through a single coordination loop so
// the visited set has one logical writer.
type Frontier struct {
	mu       sync.Mutex
	scheme   string
	host     string
	basePath string
	filters  []string
	budget   int
	taken    int
	seen     map[string]bool
	queue    []Entry
}

// New builds a Frontier rooted at seedURL. The seed is enqueued
// immediately. budget caps how many entries Take will ever hand out; a
// budget <= 0 means unlimited.
func New(seedURL string, filters []string, budget int) (*Frontier, error) {
	parsed, err := url.Parse(seedURL)
	if err != nil {
		return nil, err
	}
	f := &Frontier{
		scheme:   parsed.Scheme,
		host:     parsed.Host,
		basePath: strings.TrimSuffix(parsed.Path, "/"),
		filters:  filters,
		budget:   budget,
		seen:     make(map[string]bool),
	}
	seed := normalize(parsed)
	f.seen[seed] = true
	f.queue = append(f.queue, Entry{URL: seed, Depth: 0})
	return f, nil
}

// Offer adds a candidate URL unless it was already seen or is excluded by
// the same-origin policy, an extension rule, or a job filter. Duplicate
// and excluded offers are dropped silently.
func (f *Frontier) Offer(raw string, depth int) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return
	}
	if !f.admissible(parsed) {
		return
	}
	u := normalize(parsed)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[u] {
		return
	}
	f.seen[u] = true
	f.queue = append(f.queue, Entry{URL: u, Depth: depth})
}

// Take dequeues the next URL in discovery order. Once the page budget is
// reached it reports empty even if unvisited URLs remain, guaranteeing
// termination on large or cyclic sites.
func (f *Frontier) Take() (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.budget > 0 && f.taken >= f.budget {
		return Entry{}, false
	}
	if len(f.queue) == 0 {
		return Entry{}, false
	}
	e := f.queue[0]
	f.queue = f.queue[1:]
	f.taken++
	return e, true
}

// Seen reports whether the normalized form of raw was ever admitted.
func (f *Frontier) Seen(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[normalize(parsed)]
}

func (f *Frontier) admissible(u *url.URL) bool {
	if u.Scheme != f.scheme || u.Host != f.host {
		return false
	}
	path := u.Path
	if !strings.HasPrefix(path, f.basePath) {
		return false
	}
	lower := strings.ToLower(path)
	if dot := strings.LastIndex(lower, "."); dot >= 0 {
		if _, bad := excludedExtensions[lower[dot:]]; bad {
			return false
		}
	}
	full := u.String()
	for _, pattern := range f.filters {
		if pattern == "" {
			continue
		}
		if strings.Contains(full, pattern) || strings.HasSuffix(lower, strings.ToLower(pattern)) {
			return false
		}
	}
	return true
}

// normalize strips the fragment and any trailing slash so that logically
// identical URLs dedupe to one visited-set key.
func normalize(u *url.URL) string {
	c := *u
	c.Fragment = ""
	return strings.TrimSuffix(c.String(), "/")
}
