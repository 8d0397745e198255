package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/entrhq/browserforge/pkg/forgeerr"
	"github.com/entrhq/browserforge/pkg/proxy"
)

func (a *app) proxyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Check proxy lists and preview rotation",
	}
	cmd.AddCommand(a.proxyCheckCmd(), a.proxyStatsCmd())
	return cmd
}

func (a *app) proxyCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Probe every proxy in a list and report the working ones",
		Long: `Probe every proxy in a list and report the working ones.

The file holds one proxy URL per line; blank lines and lines starting
with # are ignored.`,
		Example: `  browserforge proxy check proxies.txt
  browserforge proxy check proxies.txt --workers 50 --timeout 3s --output working.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoints, err := proxy.LoadFile(args[0])
			if err != nil {
				return err
			}
			if len(endpoints) == 0 {
				return forgeerr.Config(fmt.Sprintf("no valid proxies in %s", args[0]),
					"Write one proxy URL per line, e.g. socks5://host:1080").
					WithCode(forgeerr.CodeProxyList)
			}

			out := cmd.OutOrStdout()
			target := a.v.GetString("target")
			timeout := a.v.GetDuration("timeout")
			workers := a.v.GetInt("workers")
			fmt.Fprintf(out, "Checking %d proxies against %s (workers=%d, timeout=%s)\n",
				len(endpoints), target, workers, timeout)

			results := proxy.ProbeAll(cmd.Context(), proxy.NewValidator(), endpoints, target, timeout, workers)

			var working []proxy.Endpoint
			for _, res := range results {
				if res.OK {
					working = append(working, res.Endpoint)
					fmt.Fprintf(out, "  ok    %-40s %s\n", res.Endpoint.Key(), res.Latency.Round(time.Millisecond))
					continue
				}
				reason := fmt.Sprintf("status %d", res.Status)
				if res.Err != nil {
					reason = res.Err.Error()
				}
				fmt.Fprintf(out, "  fail  %-40s %s\n", res.Endpoint.Key(), reason)
			}
			fmt.Fprintf(out, "%d of %d proxies working\n", len(working), len(endpoints))

			if output := a.v.GetString("output"); output != "" {
				if err := writeProxyList(output, working); err != nil {
					return err
				}
				fmt.Fprintf(out, "Working proxies written to %s\n", output)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntP("workers", "w", proxy.DefaultWorkers, "Maximum concurrent probes")
	flags.Duration("timeout", proxy.DefaultHealthCheckTimeout, "Timeout per probe")
	flags.String("target", proxy.DefaultHealthCheckURL, "URL fetched through each proxy")
	flags.StringP("output", "o", "", "Write the working proxies to this file")
	return cmd
}

func writeProxyList(path string, endpoints []proxy.Endpoint) error {
	var b strings.Builder
	for _, e := range endpoints {
		b.WriteString(e.URL().String())
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return forgeerr.Internal(fmt.Sprintf("failed to write %s", path), err)
	}
	return nil
}

func (a *app) proxyStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <file>",
		Short: "Dry-run rotation over a proxy list and print the counters",
		Long: `Dry-run rotation over a proxy list and print the counters.

No browser is started. Endpoints listed with --fail are reported as
failing every time they are picked, which shows how the rotator routes
around them.`,
		Example: `  browserforge proxy stats proxies.txt --strategy least-used --picks 20
  browserforge proxy stats proxies.txt --fail 10.0.0.1:8080 --metrics`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoints, err := proxy.LoadFile(args[0])
			if err != nil {
				return err
			}

			policy, err := proxy.ParsePolicy(a.v.GetString("strategy"))
			if err != nil {
				return forgeerr.Config(err.Error(), "Use one of: round-robin, random, least-used").
					WithCode(forgeerr.CodeInvalidConfig)
			}

			pool := proxy.NewPool(endpoints...)
			pool.Policy = policy
			pool.MaxFailures = a.v.GetInt("max-failures")
			pool.HealthCheck.Enabled = a.v.GetBool("health-check")
			pool.HealthCheck.Timeout = a.v.GetDuration("timeout")

			r, err := proxy.NewRotator(cmd.Context(), pool, nil)
			if err != nil {
				return err
			}
			rotator := proxy.NewLocked(r)

			failing := make(map[string]bool)
			for _, key := range a.v.GetStringSlice("fail") {
				failing[key] = true
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rotating over %d proxies (%s)\n", len(rotator.Endpoints()), policy)
			for i := 1; i <= a.v.GetInt("picks"); i++ {
				e := rotator.Next()
				status := "ok"
				if failing[e.Key()] {
					rotator.ReportFailure(e)
					status = "failed"
				} else {
					rotator.ReportSuccess(e)
				}
				fmt.Fprintf(out, "  %3d  %-40s %s\n", i, e.Key(), status)
			}

			if a.v.GetBool("metrics") {
				return writeMetrics(out, rotator)
			}
			printStats(out, rotator.Statistics())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("strategy", string(proxy.RoundRobin), "Rotation strategy: round-robin, random, least-used")
	flags.IntP("picks", "n", 10, "Number of endpoints to draw")
	flags.Int("max-failures", proxy.DefaultMaxFailures, "Failures before an endpoint is skipped")
	flags.StringSlice("fail", nil, "host:port of endpoints to report as failing")
	flags.Bool("health-check", false, "Probe every endpoint before rotating")
	flags.Duration("timeout", proxy.DefaultHealthCheckTimeout, "Timeout per health-check probe")
	flags.Bool("metrics", false, "Print the counters in Prometheus text format")
	return cmd
}

func printStats(out io.Writer, stats map[string]proxy.Stats) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(out, "\nStatistics:")
	fmt.Fprintf(out, "  %-40s %6s %9s\n", "ENDPOINT", "USAGE", "FAILURES")
	for _, k := range keys {
		fmt.Fprintf(out, "  %-40s %6d %9d\n", k, stats[k].Usage, stats[k].Failures)
	}
}

// writeMetrics renders the rotator counters as a Prometheus scrape would
// see them.
func writeMetrics(out io.Writer, source proxy.StatsSource) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(proxy.NewCollector(source)); err != nil {
		return err
	}

	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}
