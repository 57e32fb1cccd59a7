package driven

// BrowserOpener launches a browser at a URL. The authentication service
// calls it with the authorization URL during sign-in; when no opener is
// configured, the URL is neither opened nor returned to the caller.
type BrowserOpener interface {
	Open(url string) error
}
