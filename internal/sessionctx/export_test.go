package sessionctx

import "context"

// SetRunner replaces the git executor.
func (g *GitCLI) SetRunner(run func(ctx context.Context, dir string, args ...string) (string, error)) {
	g.run = run
}

// SetEndpoint points the locator at a test server.
func (l *IPInfo) SetEndpoint(url string) { l.endpoint = url }
