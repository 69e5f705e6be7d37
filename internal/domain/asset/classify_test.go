package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want []string
	}{
		{
			name: "search parameter tags xss and sqli",
			url:  "https://a.example.com/items?search=shoes",
			want: []string{"sqli", "xss"},
		},
		{
			name: "redirect parameter",
			url:  "https://a.example.com/out?redirect_url=https://evil.test",
			want: []string{"redirect"},
		},
		{
			name: "admin path",
			url:  "https://a.example.com/admin/users",
			want: []string{"admin"},
		},
		{
			name: "login path",
			url:  "https://a.example.com/auth/callback",
			want: []string{"login"},
		},
		{
			name: "git config path",
			url:  "https://a.example.com/.git/config",
			want: []string{"config"},
		},
		{
			name: "api version path",
			url:  "https://a.example.com/v2/users",
			want: []string{"api"},
		},
		{
			name: "plain page yields no tags",
			url:  "https://a.example.com/about",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyURL(tt.url))
		})
	}
}

func TestIsMediaURL(t *testing.T) {
	t.Parallel()

	assert.True(t, IsMediaURL("https://a.example.com/static/logo.png"))
	assert.True(t, IsMediaURL("https://a.example.com/fonts/main.woff2"))
	assert.False(t, IsMediaURL("https://a.example.com/login"))
	// Extension matching applies to the path, not the query string.
	assert.False(t, IsMediaURL("https://a.example.com/download?file=logo.png"))
}

func TestURLSignature(t *testing.T) {
	t.Parallel()

	// Parameter values are ignored, names are sorted.
	sigA := URLSignature("https://a.example.com/items?b=2&a=1")
	sigB := URLSignature("https://a.example.com/items?a=9&b=8")
	assert.Equal(t, sigA, sigB)
	assert.Equal(t, "a.example.com/items?a,b", sigA)

	// Different parameter sets are different endpoints.
	assert.NotEqual(t, sigA, URLSignature("https://a.example.com/items?a=1"))

	// No parameters collapses to host+path.
	assert.Equal(t, "a.example.com/items", URLSignature("https://a.example.com/items"))
}
