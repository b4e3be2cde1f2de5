package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"HTTPS://Example.COM:443/a?utm_source=x&b=2&a=1#frag", "https://example.com/a?a=1&b=2"},
		{"http://example.com", "http://example.com/"},
		{"http://example.com:80/x", "http://example.com/x"},
		{"http://example.com:8080/x?source=rss&fbclid=1&gclid=2", "http://example.com:8080/x"},
		{"https://user:pw@example.com/p", "https://example.com/p"},
		{"  https://example.com/p?UTM_Campaign=z&q=go  ", "https://example.com/p?q=go"},
		{"https://example.com/p?", "https://example.com/p"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := CleanURL(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCleanURL_IsIdempotent(t *testing.T) {
	once, err := CleanURL("https://Example.com/a/b?z=1&utm_medium=m&a=2#x")
	require.NoError(t, err)
	twice, err := CleanURL(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestCleanURL_Rejects(t *testing.T) {
	for _, in := range []string{"", "not a url", "ftp://example.com/file", "http://", "mailto:someone@example.com"} {
		_, err := CleanURL(in)
		assert.ErrorIs(t, err, ErrInvalidURL, in)
	}
}
