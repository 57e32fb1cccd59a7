package driving

import "context"

// URIHandler receives callback URIs the host's custom URI scheme dispatches
// to this extension, e.g. "vscode://publisher.extension/oauth/callback?...".
type URIHandler interface {
	HandleURI(ctx context.Context, uri string) error
}
