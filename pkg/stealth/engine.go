// Package stealth reduces the signals pages use to detect automated
// browsers. An Engine turns a config.StealthConfig into a set of init
// scripts and protocol overrides and applies them to a Target.
package stealth

import (
	"context"
	"fmt"
	"math/rand"

	rodstealth "github.com/go-rod/stealth"

	"github.com/entrhq/browserforge/pkg/config"
	"github.com/entrhq/browserforge/pkg/logging"
)

// Target is the part of a browser session the engine drives.
type Target interface {
	// AddInitScript registers script to run before any page script on every
	// new document.
	AddInitScript(ctx context.Context, script string) error
	// Evaluate runs a JavaScript function and returns its JSON result.
	Evaluate(ctx context.Context, fn string) (interface{}, error)
	SetUserAgent(ctx context.Context, userAgent string) error
	SetTimezone(ctx context.Context, timezone string) error
	SetLocale(ctx context.Context, locale string) error
	// IsChromium reports whether protocol-level overrides are available.
	IsChromium() bool
}

// Report lists what Apply did.
type Report struct {
	Applied   []string
	Failed    map[string]error
	UserAgent string
}

// Engine applies stealth measures according to its configuration.
type Engine struct {
	cfg    config.StealthConfig
	logger *logging.Logger
	intn   func(n int) int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used to report failed patches.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRand replaces the random source used to pick user agents.
func WithRand(intn func(n int) int) Option {
	return func(e *Engine) {
		if intn != nil {
			e.intn = intn
		}
	}
}

// New creates an engine. A nil cfg enables every measure.
func New(cfg *config.StealthConfig, opts ...Option) *Engine {
	e := &Engine{
		cfg:    config.DefaultStealthConfig(),
		logger: logging.Nop(),
		intn:   rand.Intn,
	}
	if cfg != nil {
		e.cfg = *cfg
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine's configuration.
func (e *Engine) Config() config.StealthConfig {
	return e.cfg
}

// RandomUserAgent returns one of DefaultUserAgents.
func (e *Engine) RandomUserAgent() string {
	return DefaultUserAgents[e.intn(len(DefaultUserAgents))]
}

// RandomUserAgent picks an entry of DefaultUserAgents using the global
// random source.
func RandomUserAgent() string {
	return DefaultUserAgents[rand.Intn(len(DefaultUserAgents))]
}

// UserAgent returns the user agent the engine would install: the custom one,
// a random one when randomization is on, or "" to keep the browser's own.
func (e *Engine) UserAgent() string {
	switch {
	case e.cfg.CustomUserAgent != "":
		return e.cfg.CustomUserAgent
	case e.cfg.RandomizeUserAgent:
		return e.RandomUserAgent()
	default:
		return ""
	}
}

// Patches returns the scripts selected by the configuration, in the order
// they are installed. The chromium base script is not included.
func (e *Engine) Patches() []Patch {
	var patches []Patch

	if e.cfg.HideWebdriver {
		patches = append(patches,
			Patch{Name: "webdriver", Script: jsHideWebdriver},
			Patch{Name: "permissions", Script: jsPermissions},
		)
	}
	if e.cfg.MaskFingerprint {
		patches = append(patches, Patch{Name: "plugins", Script: jsPlugins})
	}
	if e.cfg.RandomizeCanvas {
		patches = append(patches, Patch{Name: "canvas", Script: jsCanvas})
	}
	if e.cfg.RandomizeWebGL {
		patches = append(patches, Patch{Name: "webgl", Script: jsWebGL})
	}
	if e.cfg.RandomizeAudio {
		patches = append(patches, Patch{Name: "audio", Script: jsAudio})
	}
	patches = append(patches, Patch{Name: "languages", Script: languagesScript(e.cfg.Languages)})

	for i, script := range e.cfg.CustomPatches {
		patches = append(patches, Patch{Name: fmt.Sprintf("custom-%d", i+1), Script: script})
	}
	return patches
}

// Apply installs the configured measures on t. Failures of individual
// measures are logged and reported but never abort the rest. A disabled
// engine does nothing.
func (e *Engine) Apply(ctx context.Context, t Target) Report {
	report := Report{Failed: make(map[string]error)}
	if !e.cfg.Enabled {
		return report
	}

	step := func(name string, fn func() error) {
		if err := fn(); err != nil {
			e.logger.Warnf("stealth: %s failed: %v", name, err)
			report.Failed[name] = err
			return
		}
		report.Applied = append(report.Applied, name)
	}

	if t.IsChromium() {
		if e.cfg.RemoveAutomationFlags {
			step("automation-flags", func() error {
				return t.AddInitScript(ctx, rodstealth.JS)
			})
		}
		if ua := e.UserAgent(); ua != "" {
			step("user-agent", func() error {
				if err := t.SetUserAgent(ctx, ua); err != nil {
					return err
				}
				report.UserAgent = ua
				return nil
			})
		}
		if e.cfg.Timezone != "" {
			step("timezone", func() error { return t.SetTimezone(ctx, e.cfg.Timezone) })
		}
		if e.cfg.Locale != "" {
			step("locale", func() error { return t.SetLocale(ctx, e.cfg.Locale) })
		}
	}

	for _, p := range e.Patches() {
		step(p.Name, func() error { return t.AddInitScript(ctx, p.Script) })
	}

	e.logger.Debugf("stealth: applied %d measures, %d failed", len(report.Applied), len(report.Failed))
	return report
}
