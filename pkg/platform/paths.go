package platform

import (
	"context"
	"os"
	"os/exec"
	"regexp"
	"time"
)

var browserPaths = map[OS]map[Browser][]string{
	Windows: {
		Chrome: {
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			`%LOCALAPPDATA%\Google\Chrome\Application\chrome.exe`,
		},
		Firefox: {
			`C:\Program Files\Mozilla Firefox\firefox.exe`,
			`C:\Program Files (x86)\Mozilla Firefox\firefox.exe`,
		},
		Edge: {
			`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
			`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
		},
	},
	Linux: {
		Chrome: {
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		},
		Chromium: {
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		},
		Firefox: {
			"/usr/bin/firefox",
			"/usr/bin/firefox-esr",
			"/snap/bin/firefox",
		},
		Edge: {
			"/usr/bin/microsoft-edge",
			"/usr/bin/microsoft-edge-stable",
		},
	},
	MacOS: {
		Chrome:   {"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"},
		Chromium: {"/Applications/Chromium.app/Contents/MacOS/Chromium"},
		Firefox:  {"/Applications/Firefox.app/Contents/MacOS/firefox"},
		Edge:     {"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
		Safari:   {"/Applications/Safari.app/Contents/MacOS/Safari"},
	},
	WSL: {
		Chrome: {
			"/mnt/c/Program Files/Google/Chrome/Application/chrome.exe",
			"/mnt/c/Program Files (x86)/Google/Chrome/Application/chrome.exe",
		},
		Firefox: {
			"/mnt/c/Program Files/Mozilla Firefox/firefox.exe",
			"/mnt/c/Program Files (x86)/Mozilla Firefox/firefox.exe",
		},
		Edge: {
			"/mnt/c/Program Files (x86)/Microsoft/Edge/Application/msedge.exe",
			"/mnt/c/Program Files/Microsoft/Edge/Application/msedge.exe",
		},
	},
}

var browserCommands = map[Browser][]string{
	Chrome:   {"google-chrome", "google-chrome-stable", "chrome", "chromium"},
	Chromium: {"chromium", "chromium-browser"},
	Firefox:  {"firefox"},
	Edge:     {"microsoft-edge", "microsoft-edge-stable", "msedge"},
	Safari:   {"safari"},
}

// driverCommands names the driver executables shipped by the OS or the
// browser vendor for system-provided browsers.
var driverCommands = map[Browser][]string{
	Safari: {"safaridriver"},
	Edge:   {"msedgedriver", "microsoft-edge", "microsoft-edge-stable", "msedge"},
}

var driverPaths = map[OS]map[Browser][]string{
	MacOS: {
		Safari: {"/usr/bin/safaridriver"},
	},
}

// FindBrowserBinary returns the first installed binary for the browser, first
// checking well-known install locations, then PATH. It returns "" when the
// browser is not installed.
func FindBrowserBinary(b Browser) string {
	osType := DetectOS()
	return findBinary(browserPaths[osType][b], browserCommands[b], fileExists, exec.LookPath)
}

// FindSystemDriver locates the driver binary for a system-provided browser.
func FindSystemDriver(b Browser) string {
	osType := DetectOS()
	paths := append([]string{}, driverPaths[osType][b]...)
	paths = append(paths, browserPaths[osType][b]...)
	return findBinary(paths, driverCommands[b], fileExists, exec.LookPath)
}

func findBinary(paths, commands []string, exists func(string) bool, lookPath func(string) (string, error)) string {
	for _, p := range paths {
		p = os.ExpandEnv(windowsEnvStyle.ReplaceAllString(p, "$${$1}"))
		if exists(p) {
			return p
		}
	}
	for _, name := range commands {
		if p, err := lookPath(name); err == nil && p != "" {
			return p
		}
	}
	return ""
}

// windowsEnvStyle matches %VAR% references in Windows install paths.
var windowsEnvStyle = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*)%`)

var versionPattern = regexp.MustCompile(`(\d+\.\d+\.\d+(?:\.\d+)?)`)

// BrowserVersion runs the binary with a version flag and extracts the dotted
// version number. It returns "" when the version cannot be determined.
func BrowserVersion(ctx context.Context, binary string) string {
	if !fileExists(binary) {
		return ""
	}
	for _, flag := range []string{"--version", "-version", "version"} {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		out, err := exec.CommandContext(cctx, binary, flag).Output()
		cancel()
		if err != nil {
			continue
		}
		if v := ParseVersion(string(out)); v != "" {
			return v
		}
	}
	return ""
}

// ParseVersion extracts the first dotted version number from s.
func ParseVersion(s string) string {
	return versionPattern.FindString(s)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
