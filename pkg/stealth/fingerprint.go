package stealth

import (
	"context"
	"fmt"
)

// Fingerprint is what a page script can observe about the browser.
type Fingerprint struct {
	Webdriver     bool
	UserAgent     string
	Languages     []string
	Plugins       int
	WebGLVendor   string
	WebGLRenderer string
}

// Inspect evaluates a detection script in t's current document.
func Inspect(ctx context.Context, t Target) (Fingerprint, error) {
	raw, err := t.Evaluate(ctx, fingerprintScript)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to evaluate fingerprint: %w", err)
	}

	m, ok := raw.(map[string]interface{})
	if !ok {
		return Fingerprint{}, fmt.Errorf("unexpected fingerprint result %T", raw)
	}

	fp := Fingerprint{}
	fp.Webdriver, _ = m["webdriver"].(bool)
	fp.UserAgent, _ = m["userAgent"].(string)
	fp.WebGLVendor, _ = m["webglVendor"].(string)
	fp.WebGLRenderer, _ = m["webglRenderer"].(string)

	switch n := m["plugins"].(type) {
	case float64:
		fp.Plugins = int(n)
	case int:
		fp.Plugins = n
	}

	if langs, ok := m["languages"].([]interface{}); ok {
		for _, l := range langs {
			if s, ok := l.(string); ok {
				fp.Languages = append(fp.Languages, s)
			}
		}
	}
	return fp, nil
}
