package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/entrhq/browserforge/pkg/config"
	"github.com/entrhq/browserforge/pkg/drivers"
	"github.com/entrhq/browserforge/pkg/forge"
	"github.com/entrhq/browserforge/pkg/forgeerr"
	"github.com/entrhq/browserforge/pkg/platform"
	"github.com/entrhq/browserforge/pkg/proxy"
)

func (a *app) launchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Launch a configured browser and keep it open until interrupted",
		Example: `  browserforge launch --browser chrome --url https://example.com
  browserforge launch --headless --stealth --url https://example.com
  browserforge launch --config browserforge.yaml --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			f, err := a.newForge()
			if err != nil {
				return err
			}
			defer f.Close()

			out := cmd.OutOrStdout()
			cfg := f.Config()
			fmt.Fprintf(out, "Launching %s browser...\n", cfg.Browser)

			if addr := a.v.GetString("metrics-addr"); addr != "" {
				if err := a.serveMetrics(ctx, f, addr); err != nil {
					return err
				}
			}

			d, err := f.CreateDriver(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			if d.Proxy != nil {
				fmt.Fprintf(out, "Using proxy %s\n", d.Proxy)
			}
			for name, err := range d.Stealth.Failed {
				fmt.Fprintf(out, "Stealth patch %s not applied: %v\n", name, err)
			}

			if url := a.v.GetString("url"); url != "" {
				fmt.Fprintf(out, "Navigating to %s...\n", url)
				err := d.Navigate(ctx, url)
				if d.Proxy != nil {
					f.ReportProxy(*d.Proxy, err == nil)
				}
				if err != nil {
					return forgeerr.Retryable(fmt.Sprintf("failed to load %s", url), err)
				}
			}

			fmt.Fprintln(out, "Browser launched successfully!")
			fmt.Fprintln(out, "Press Ctrl+C to quit...")
			<-ctx.Done()

			fmt.Fprintln(out, "Browser closed.")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringP("browser", "b", string(platform.Chrome), "Browser type: "+platform.BrowserNames())
	flags.BoolP("headless", "H", false, "Run in headless mode")
	flags.BoolP("stealth", "s", false, "Enable stealth mode")
	flags.StringP("proxy", "p", "", "Proxy URL (e.g. http://host:port)")
	flags.StringP("config", "c", "", "Configuration file (default: nearest "+config.DefaultFileName+")")
	flags.String("preset", "", "Preset or scenario used as the base configuration")
	flags.StringP("url", "u", "", "URL to navigate to")
	flags.String("log-level", "", "Log level: DEBUG, INFO, WARNING, ERROR, CRITICAL")
	flags.String("metrics-addr", "", "Serve proxy rotation metrics on this address")
	return cmd
}

// newForge builds a Forge from the bound flags and environment. Only values
// that were set explicitly override the configuration file or preset.
func (a *app) newForge() (*forge.Forge, error) {
	opts := []forge.Option{
		forge.WithLogger(a.logger),
		forge.WithCacheDir(a.v.GetString("cache-dir")),
	}
	if a.v.IsSet("browser") {
		opts = append(opts, forge.WithBrowser(platform.Browser(a.v.GetString("browser"))))
	}
	if a.v.IsSet("headless") {
		opts = append(opts, forge.WithHeadless(a.v.GetBool("headless")))
	}
	if a.v.IsSet("stealth") {
		opts = append(opts, forge.WithStealth(a.v.GetBool("stealth")))
	}
	if p := a.v.GetString("proxy"); p != "" {
		opts = append(opts, forge.WithProxy(p))
	}
	if level := a.v.GetString("log-level"); level != "" {
		opts = append(opts, forge.WithOverrides(map[string]interface{}{"log_level": level}))
	}

	path := a.v.GetString("config")
	if path == "" {
		path = config.FindConfigFile("", "")
	}
	preset := a.v.GetString("preset")

	switch {
	case path != "":
		a.logger.Infof("using configuration file %s", path)
		return forge.FromConfig(path, opts...)
	case preset != "":
		return forge.FromPreset(preset, platform.Browser(a.v.GetString("browser")), opts...)
	default:
		return forge.New(opts...)
	}
}

// serveMetrics exposes the rotator counters until ctx is done.
func (a *app) serveMetrics(ctx context.Context, f *forge.Forge, addr string) error {
	r, err := f.Rotator(ctx)
	if err != nil {
		return err
	}
	if r == nil {
		a.logger.Warnf("metrics requested but proxy rotation is not configured")
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(proxy.NewCollector(r))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Errorf("metrics server stopped: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	a.logger.Infof("serving proxy metrics on %s/metrics", addr)
	return nil
}

func (a *app) clearCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear-cache",
		Short: "Remove cached browser drivers",
		Example: `  browserforge clear-cache
  browserforge clear-cache --browser chrome`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := drivers.NewManager(a.v.GetString("cache-dir"))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			name := a.v.GetString("browser")
			if name == "all" {
				n, err := m.ClearAll()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleared %d cached driver(s)\n", n)
				return nil
			}

			b, err := parseBrowser(name)
			if err != nil {
				return err
			}
			if m.Clear(b) > 0 {
				fmt.Fprintf(out, "Cleared %s driver cache\n", b)
			} else {
				fmt.Fprintf(out, "No cached %s driver found\n", b)
			}
			return nil
		},
	}
	cmd.Flags().StringP("browser", "b", "all", "Browser to clear the cache for, or all")
	return cmd
}

func (a *app) systemInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "system-info",
		Short: "Show information about this system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := platform.SystemInfo()
			out := cmd.OutOrStdout()

			if a.v.GetBool("json") {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintln(out, "\nSystem Information:")
			fmt.Fprintf(out, "  OS: %s\n", info.OS)
			fmt.Fprintf(out, "  OS Version: %s\n", info.OSVersion)
			fmt.Fprintf(out, "  Architecture: %s\n", info.Arch)
			fmt.Fprintf(out, "  Go: %s\n", info.GoVersion)
			fmt.Fprintf(out, "  WSL: %t\n", info.IsWSL)
			fmt.Fprintf(out, "  Display: %t\n", info.HasDisplay)
			printBrowsers(out)
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print as JSON")
	return cmd
}

func printBrowsers(out io.Writer) {
	fmt.Fprintln(out, "  Browsers:")
	for _, b := range platform.Browsers {
		path := platform.FindBrowserBinary(b)
		if path == "" {
			fmt.Fprintf(out, "    %s: not found\n", b)
			continue
		}
		fmt.Fprintf(out, "    %s: %s\n", b, path)
	}
}

func (a *app) initConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a starter configuration file",
		Example: `  browserforge init-config
  browserforge init-config --template stealth --browser chrome
  browserforge init-config --template advanced --output my-config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := parseBrowser(a.v.GetString("browser"))
			if err != nil {
				return err
			}

			output := a.v.GetString("output")
			if _, err := os.Stat(output); err == nil && !a.v.GetBool("force") {
				return forgeerr.Config(fmt.Sprintf("file %s already exists", output),
					"Use --force to overwrite it").WithCode(forgeerr.CodeConfigFile)
			}

			if err := writeTemplate(output, a.v.GetString("template"), b); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration file created: %s\n", output)
			fmt.Fprintf(out, "Edit the file and use with: browserforge launch --config %s\n", output)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringP("browser", "b", string(platform.Chrome), "Browser type: "+platform.BrowserNames())
	flags.StringP("template", "t", "basic", "Template: basic, advanced, or a preset or scenario name")
	flags.StringP("output", "o", config.DefaultFileName, "Output file path")
	flags.BoolP("force", "f", false, "Overwrite an existing file")
	return cmd
}

// writeTemplate writes the basic or advanced template, or the full layer of
// a preset or scenario.
func writeTemplate(path, template string, b platform.Browser) error {
	switch template {
	case "basic", "":
		return config.CreateTemplate(path, b, false)
	case "advanced":
		return config.CreateTemplate(path, b, true)
	}

	layer, err := config.Preset(template, b)
	if err != nil {
		if !config.IsScenario(template) {
			return err
		}
		layer = config.ScenarioFor(template, b)
	}
	return config.SaveYAML(layer, path)
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "validate <config-file>",
		Short:   "Validate a configuration file",
		Example: "  browserforge validate browserforge.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.LoadYAML(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.ValidateMap(data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration file is valid!")
			fmt.Fprintf(out, "  Browser: %s\n", cfg.Browser)
			fmt.Fprintf(out, "  Headless: %t\n", cfg.BrowserOptions.Headless)
			fmt.Fprintf(out, "  Stealth: %t\n", cfg.StealthEnabled())
			fmt.Fprintf(out, "  Proxy: %t\n", cfg.Proxy != nil)
			if cfg.ProxyRotation != nil {
				fmt.Fprintf(out, "  Proxy rotation: %d endpoints (%s)\n",
					len(cfg.ProxyRotation.Endpoints), cfg.ProxyRotation.WithDefaults().Policy)
			}
			return nil
		},
	}
}

func (a *app) checkDriverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-driver",
		Short: "Check whether a browser driver is available",
		Example: `  browserforge check-driver --browser chrome
  browserforge check-driver --browser firefox --install`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := parseBrowser(a.v.GetString("browser"))
			if err != nil {
				return err
			}
			m, err := drivers.NewManager(a.v.GetString("cache-dir"))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checking %s driver...\n", b)

			if a.v.GetBool("install") {
				path, err := m.GetPath(cmd.Context(), b, a.v.GetString("driver-version"))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Driver ready: %s\n", path)
			}

			if !m.IsAvailable(b) {
				fmt.Fprintln(out, "Driver not available")
				return nil
			}
			if rec, ok := m.Info(b); ok {
				fmt.Fprintln(out, "Driver found:")
				fmt.Fprintf(out, "  Path: %s\n", rec.Path)
				fmt.Fprintf(out, "  Version: %s\n", rec.Version)
				fmt.Fprintf(out, "  Last updated: %s\n", rec.LastUpdated.Format(time.RFC3339))
				return nil
			}
			fmt.Fprintln(out, "Driver provided by the system")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringP("browser", "b", string(platform.Chrome), "Browser type: "+platform.BrowserNames())
	flags.Bool("install", false, "Download the driver if it is not cached")
	flags.String("driver-version", "latest", "Driver version to install")
	return cmd
}

func parseBrowser(name string) (platform.Browser, error) {
	b, err := platform.ParseBrowser(name)
	if err != nil {
		return "", forgeerr.Config(err.Error(), "Valid browsers: "+platform.BrowserNames()).
			WithCode(forgeerr.CodeUnsupportedBrowser)
	}
	return b, nil
}
