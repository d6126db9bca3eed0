package instagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLoginURL(t *testing.T) {
	assert.Equal(t, "https://www.instagram.com/accounts/login/", GetLoginURL(""))
	assert.Equal(t, "http://127.0.0.1:4000/accounts/login/", GetLoginURL("http://127.0.0.1:4000/"))
}

func TestClassifyLoginURL(t *testing.T) {
	tests := []struct {
		url      string
		expected LoginOutcome
	}{
		{"https://www.instagram.com/", LoginSucceeded},
		{"https://www.instagram.com/accounts/onetap/?next=%2F", LoginSucceeded},
		{"https://www.instagram.com/accounts/login/", LoginBadCredentials},
		{"https://www.instagram.com/accounts/login/?source=auth_switcher", LoginBadCredentials},
		{"https://www.instagram.com/challenge/AXG3/", LoginVerificationRequired},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyLoginURL(tt.url))
		})
	}
}

func TestIsPostURL(t *testing.T) {
	assert.True(t, IsPostURL("/p/Cx1/"))
	assert.True(t, IsPostURL("https://www.instagram.com/reel/Cy2/"))
	assert.False(t, IsPostURL("/brand/followers/"))
	assert.False(t, IsPostURL("/explore/"))
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name     string
		page     string
		href     string
		expected string
	}{
		{
			name:     "relative post link",
			page:     "https://www.instagram.com/brand/",
			href:     "/p/Cx1/",
			expected: "https://www.instagram.com/p/Cx1/",
		},
		{
			name:     "absolute reel link",
			page:     "https://www.instagram.com/brand/",
			href:     "https://www.instagram.com/reel/Cy2/",
			expected: "https://www.instagram.com/reel/Cy2/",
		},
		{
			name:     "fragment dropped",
			page:     "https://www.instagram.com/brand/",
			href:     "/p/Cx1/#comments",
			expected: "https://www.instagram.com/p/Cx1/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveURL(tt.page, tt.href)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestShortcode(t *testing.T) {
	assert.Equal(t, "Cx1", Shortcode("https://www.instagram.com/p/Cx1/"))
	assert.Equal(t, "Cy2", Shortcode("https://www.instagram.com/brand/reel/Cy2/"))
	assert.Equal(t, "", Shortcode("https://www.instagram.com/brand/"))
}

func TestUsernameFromProfileURL(t *testing.T) {
	assert.Equal(t, "brand.official", UsernameFromProfileURL("https://www.instagram.com/brand.official/"))
	assert.Equal(t, "brand", UsernameFromProfileURL("https://www.instagram.com/brand/reels/"))
	assert.Equal(t, "", UsernameFromProfileURL("https://www.instagram.com/"))
}

func TestSanitizeUsername(t *testing.T) {
	assert.Equal(t, "user", sanitizeUsername("@user/ "))
	assert.Equal(t, "", sanitizeUsername(""))
}
