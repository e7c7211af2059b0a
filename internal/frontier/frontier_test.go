package frontier

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrontier_SeedVisitedOnce(t *testing.T) {
	t.Parallel()
	f, err := New("https://example.com", nil, 0)
	require.NoError(t, err)

	e, ok := f.Take()
	require.True(t, ok)
	require.Equal(t, "https://example.com", e.URL)
	require.Equal(t, 0, e.Depth)

	// Re-offering the seed, with or without a trailing slash or fragment,
	// must not enqueue it again.
	f.Offer("https://example.com/", 1)
	f.Offer("https://example.com#top", 1)
	_, ok = f.Take()
	require.False(t, ok)
}

func TestFrontier_CyclicLinksTerminate(t *testing.T) {
	t.Parallel()
	f, err := New("https://example.com/a", nil, 0)
	require.NoError(t, err)

	// a -> b -> a cycle.
	taken := 0
	for {
		e, ok := f.Take()
		if !ok {
			break
		}
		taken++
		switch e.URL {
		case "https://example.com/a":
			f.Offer("https://example.com/b", e.Depth+1)
		case "https://example.com/b":
			f.Offer("https://example.com/a", e.Depth+1)
		}
	}
	require.Equal(t, 2, taken)
}

func TestFrontier_FilterExclusion(t *testing.T) {
	t.Parallel()
	f, err := New("https://example.com", []string{".pdf", "/admin"}, 0)
	require.NoError(t, err)
	_, ok := f.Take()
	require.True(t, ok)

	f.Offer("https://example.com/report.pdf", 1)
	f.Offer("https://example.com/admin/users", 1)
	f.Offer("https://example.com/docs", 1)

	e, ok := f.Take()
	require.True(t, ok)
	require.Equal(t, "https://example.com/docs", e.URL)
	_, ok = f.Take()
	require.False(t, ok)

	require.False(t, f.Seen("https://example.com/report.pdf"))
	require.False(t, f.Seen("https://example.com/admin/users"))
}

func TestFrontier_SameOriginOnly(t *testing.T) {
	t.Parallel()
	f, err := New("https://example.com", nil, 0)
	require.NoError(t, err)
	_, _ = f.Take()

	f.Offer("https://other.org/page", 1)
	f.Offer("http://example.com/page", 1) // scheme mismatch
	f.Offer("https://example.com/page", 1)

	e, ok := f.Take()
	require.True(t, ok)
	require.Equal(t, "https://example.com/page", e.URL)
	_, ok = f.Take()
	require.False(t, ok)
}

func TestFrontier_AssetExtensionsAlwaysExcluded(t *testing.T) {
	t.Parallel()
	f, err := New("https://example.com", nil, 0)
	require.NoError(t, err)
	_, _ = f.Take()

	f.Offer("https://example.com/logo.png", 1)
	f.Offer("https://example.com/app.js", 1)
	f.Offer("https://example.com/data.json", 1)
	_, ok := f.Take()
	require.False(t, ok)
}

func TestFrontier_PageBudget(t *testing.T) {
	t.Parallel()
	f, err := New("https://example.com", nil, 2)
	require.NoError(t, err)
	f.Offer("https://example.com/1", 1)
	f.Offer("https://example.com/2", 1)
	f.Offer("https://example.com/3", 1)

	_, ok := f.Take()
	require.True(t, ok)
	_, ok = f.Take()
	require.True(t, ok)
	// Budget reached: further takes report empty even though /2 and /3
	// remain unvisited.
	_, ok = f.Take()
	require.False(t, ok)
}

func TestFrontier_BasePathScope(t *testing.T) {
	t.Parallel()
	f, err := New("https://example.com/docs/", nil, 0)
	require.NoError(t, err)
	_, _ = f.Take()

	f.Offer("https://example.com/blog/post", 1)
	f.Offer("https://example.com/docs/intro", 1)

	e, ok := f.Take()
	require.True(t, ok)
	require.Equal(t, "https://example.com/docs/intro", e.URL)
}
