package auth

import "github.com/skratchdot/open-golang/open"

// defaultOpenBrowser launches the system default browser at the given
// URL. The coordinator holds it as a field so tests can intercept the
// launch.
func defaultOpenBrowser(url string) error {
	return open.Run(url)
}
