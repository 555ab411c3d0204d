package util

import (
	"os/exec"
	"runtime"
)

// browserCommands candidate commands that open url on goos, in order of preference
func browserCommands(goos, url string) [][]string {
	switch goos {
	case "windows":
		// rundll32 works from Windows 7 on; explorer is the fallback
		return [][]string{
			{"rundll32", "url.dll,FileProtocolHandler", url},
			{"explorer", url},
		}
	case "darwin":
		return [][]string{{"open", url}}
	default:
		cmds := [][]string{{"xdg-open", url}}
		for _, browser := range []string{"google-chrome", "firefox", "chromium-browser", "sensible-browser"} {
			cmds = append(cmds, []string{browser, url})
		}
		return cmds
	}
}

// OpenBrowser opens url with the default browser
func OpenBrowser(url string) error {
	args := browserCommands(runtime.GOOS, url)[0]
	return exec.Command(args[0], args[1:]...).Start()
}

// OpenBrowserWithFallback tries the default browser first, then known alternatives
func OpenBrowserWithFallback(url string) error {
	var firstErr error
	for _, args := range browserCommands(runtime.GOOS, url) {
		err := exec.Command(args[0], args[1:]...).Start()
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
