package shared

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

var getRuntime = func() string { return runtime.GOOS }

var launchers = map[string][]string{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"windows": {"cmd", "/c", "start"},
}

// browserCommand returns the argv that opens url. $BROWSER wins over the platform default.
func browserCommand(url string) ([]string, error) {
	if b := os.Getenv("BROWSER"); b != "" {
		return []string{b, url}, nil
	}

	launcher, ok := launchers[getRuntime()]
	if !ok {
		return nil, fmt.Errorf("%w: no browser launcher for %s", ErrServiceUnavailable, getRuntime())
	}
	return append(append([]string{}, launcher...), url), nil
}

// OpenBrowser starts the user's browser on url, used for the Spotify authorization page.
func OpenBrowser(url string) error {
	argv, err := browserCommand(url)
	if err != nil {
		return err
	}

	if err := exec.Command(argv[0], argv[1:]...).Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
