// Package platform detects the host environment: operating system, CPU
// architecture, display availability, per-user directories and installed
// browser binaries.
package platform

import (
	"fmt"
	"strings"
)

// Browser identifies a supported browser family.
type Browser string

const (
	Chrome   Browser = "chrome"
	Firefox  Browser = "firefox"
	Edge     Browser = "edge"
	Safari   Browser = "safari"
	Chromium Browser = "chromium"
)

// Browsers lists every supported browser in display order.
var Browsers = []Browser{Chrome, Firefox, Edge, Safari, Chromium}

// ParseBrowser converts a case-insensitive name into a Browser.
func ParseBrowser(name string) (Browser, error) {
	b := Browser(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Browsers {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("unsupported browser %q (supported: %s)", name, BrowserNames())
}

// BrowserNames returns the supported names joined by ", ".
func BrowserNames() string {
	names := make([]string, len(Browsers))
	for i, b := range Browsers {
		names[i] = string(b)
	}
	return strings.Join(names, ", ")
}

// IsChromiumFamily reports whether the browser speaks the Chrome DevTools
// Protocol.
func (b Browser) IsChromiumFamily() bool {
	return b == Chrome || b == Chromium || b == Edge
}

// IsSystemProvided reports whether the browser's driver ships with the OS or
// the browser installation and is never downloaded.
func (b Browser) IsSystemProvided() bool {
	return b == Safari || b == Edge
}

func (b Browser) String() string {
	return string(b)
}
