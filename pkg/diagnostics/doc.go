// Package diagnostics saves screenshots and page HTML next to the parser log.
//
// Files are named after the account and the capture time in milliseconds:
//
//	account-{id}-{ms}.png   full page screenshot of a loaded profile
//	account-{id}-{ms}.html  the profile's HTML
//	error-{id}-{ms}.png     viewport screenshot after a failed account
//
// Writes go through a temporary file and a rename so a crash never leaves a
// truncated capture. Nothing here returns an error; failures are reported
// as models.Warning values and logged.
package diagnostics
