package instagram

// Login form
const (
	UsernameInputSelector = `input[name="username"]`
	PasswordInputSelector = `input[name="password"]`
	SubmitButtonSelector  = `button[type="submit"]`
)

// PopupDismissTexts are the button labels of the "save login info" and
// "turn on notifications" dialogs shown after login.
var PopupDismissTexts = []string{"Not Now", "Не сейчас"}

// Profile page markers, matched against h2 text
const (
	PrivateAccountMarker = "This Account is Private"
	NotFoundMarker       = "Sorry, this page isn't available"
	MarkerSelector       = "h2"
)

// FollowerSelectors are tried in order; the first yielding a positive count wins.
var FollowerSelectors = []string{
	`header section ul li:nth-child(2) a span`,
	`header section ul li:nth-child(2) span`,
	`a[href$="/followers/"] span`,
	`span[title*="follower"]`,
	`span[title*="подписчик"]`,
	`header section div a:nth-child(2) span`,
}

// PostLinkSelector matches post and reel anchors on a profile grid
const PostLinkSelector = `a[href*="/reel/"], a[href*="/p/"]`

// StructuredDataSelector matches the JSON blobs Instagram embeds for hydration
const StructuredDataSelector = `script[type="application/json"]`

// GlobalDataExpression reads the legacy global post payload, if present
const GlobalDataExpression = `window.__additionalDataLoaded || null`
