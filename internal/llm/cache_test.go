package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct{ id int }

func (f *fakeProvider) Chat(ctx context.Context, req Request) (Message, error) {
	return Message{}, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, req Request, h StreamHandler) error {
	return nil
}

func TestClientCache_GetOrCreate_MemoizesByPrefixAndURL(t *testing.T) {
	c := NewClientCache()
	builds := 0
	build := func() Provider {
		builds++
		return &fakeProvider{id: builds}
	}

	p1 := c.GetOrCreate("sk-aaaaaaaaaaaaaaaa", "https://api.example.com", build)
	p2 := c.GetOrCreate("sk-aaaaaaaaaaaaaaaa", "https://api.example.com", build)

	assert.Same(t, p1, p2, "same key should return the memoized client")
	assert.Equal(t, 1, builds)
}

func TestClientCache_GetOrCreate_DifferentBaseURLBuildsNewClient(t *testing.T) {
	c := NewClientCache()
	builds := 0
	build := func() Provider {
		builds++
		return &fakeProvider{id: builds}
	}

	c.GetOrCreate("sk-aaaaaaaaaaaaaaaa", "https://a.example.com", build)
	c.GetOrCreate("sk-aaaaaaaaaaaaaaaa", "https://b.example.com", build)

	assert.Equal(t, 2, builds)
}

func TestClientCache_InfoAndClear(t *testing.T) {
	c := NewClientCache()
	build := func() Provider { return &fakeProvider{} }

	c.GetOrCreate("sk-aaaaaaaaaaaaaaaa", "https://a.example.com", build)
	c.GetOrCreate("sk-bbbbbbbbbbbbbbbb", "https://b.example.com", build)

	count, urls := c.Info()
	require.Equal(t, 2, count)
	assert.ElementsMatch(t, []string{"https://a.example.com", "https://b.example.com"}, urls)

	c.Clear()
	count, urls = c.Info()
	assert.Equal(t, 0, count)
	assert.Empty(t, urls)
}

func TestKeyPrefix(t *testing.T) {
	assert.Equal(t, "short", keyPrefix("short"))
	assert.Equal(t, "sk-aaaaaa", keyPrefix("sk-aaaaaa"))
	assert.Equal(t, "sk-aaaaaaa", keyPrefix("sk-aaaaaaaaXXXXXXXX"))
}
