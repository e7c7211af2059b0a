package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGetObject(t *testing.T) {
	store := NewDocumentStore()

	uri, err := store.PutObject(context.Background(), "job-1/llms.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "memory://job-1/llms.txt", uri)

	data, ok := store.GetObject("job-1/llms.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data)

	_, ok = store.GetObject("missing")
	assert.False(t, ok)
}
