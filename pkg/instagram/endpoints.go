package instagram

import (
	"net/url"
	"strings"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// LoginPath is the login form the session starts from
	LoginPath = "/accounts/login/"

	// ChallengePath prefixes the verification pages Instagram redirects to
	// when it wants a code or a captcha
	ChallengePath = "/challenge/"

	postPathSegment = "/p/"
	reelPathSegment = "/reel/"
)

// LoginOutcome classifies where the browser ended up after submitting the login form
type LoginOutcome string

const (
	LoginSucceeded            LoginOutcome = "ok"
	LoginBadCredentials       LoginOutcome = "bad_credentials"
	LoginVerificationRequired LoginOutcome = "verification_required"
)

// GetLoginURL returns the login page under base, or under BaseURL when base is empty
func GetLoginURL(base string) string {
	if base == "" {
		base = BaseURL
	}
	return strings.TrimRight(base, "/") + LoginPath
}

// ClassifyLoginURL inspects the URL reached after submitting credentials
func ClassifyLoginURL(current string) LoginOutcome {
	switch {
	case strings.Contains(current, LoginPath):
		return LoginBadCredentials
	case strings.Contains(current, ChallengePath):
		return LoginVerificationRequired
	default:
		return LoginSucceeded
	}
}

// IsPostURL reports whether href points at a post or a reel
func IsPostURL(href string) bool {
	return strings.Contains(href, postPathSegment) || strings.Contains(href, reelPathSegment)
}

// ResolveURL turns a possibly relative href into an absolute URL against
// pageURL. Fragments are dropped so the same post is not visited twice.
func ResolveURL(pageURL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	return abs.String(), nil
}

// Shortcode extracts the post or reel code from a post URL
func Shortcode(postURL string) string {
	u, err := url.Parse(postURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "p" || parts[i] == "reel" {
			return parts[i+1]
		}
	}
	return ""
}

// UsernameFromProfileURL returns the first path segment of a profile URL
func UsernameFromProfileURL(profileURL string) string {
	u, err := url.Parse(profileURL)
	if err != nil {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	if i := strings.Index(path, "/"); i >= 0 {
		path = path[:i]
	}
	return sanitizeUsername(path)
}

// sanitizeUsername strips a leading @ and trailing slashes or spaces
func sanitizeUsername(username string) string {
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}
