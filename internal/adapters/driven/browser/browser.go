// Package browser implements driven.BrowserOpener by shelling out to the
// platform's URL handler, adapted from the teacher's OpenBrowser helper.
// It is wired only by the CLI entry point (cmd/feima), both into the login
// command and into the authentication provider built there.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
)

var _ driven.BrowserOpener = (*Opener)(nil)

// Opener launches the system default browser.
type Opener struct{}

// New returns a browser opener.
func New() *Opener {
	return &Opener{}
}

func (Opener) Open(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("browser: unsupported platform %q", runtime.GOOS)
	}

	return cmd.Start()
}
