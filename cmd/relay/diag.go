package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/diagnostics"
)

var diagFlags struct {
	addr    string
	prefix  string
	output  string
	timeout time.Duration
}

var waitFlags struct {
	interval time.Duration
	timeout  time.Duration
}

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Inspect a running relay's request registry",
	Long: `Query the diagnostics endpoints of a running relay.

The relay must have diagnostics.enabled set. Output defaults to a table;
use --output json for the raw response.

Examples:
  # Registry summary
  relay diag metrics

  # In-flight requests on a remote relay
  relay diag requests --addr relay.internal:8080

  # Evict one stuck request
  relay diag cleanup 3f2c9a1e-...`,
}

func init() {
	rootCmd.AddCommand(diagCmd)

	pf := diagCmd.PersistentFlags()
	pf.StringVar(&diagFlags.addr, "addr", "127.0.0.1:8080", "relay address")
	pf.StringVar(&diagFlags.prefix, "prefix", diagnostics.DefaultPrefix, "diagnostics path prefix")
	pf.StringVarP(&diagFlags.output, "output", "o", "text", "output format (text, json, csv)")
	pf.DurationVar(&diagFlags.timeout, "timeout", 10*time.Second, "per-call timeout")

	diagCmd.AddCommand(
		&cobra.Command{
			Use:   "metrics",
			Short: "Show registry metrics",
			Args:  cobra.NoArgs,
			RunE:  diagMetrics,
		},
		&cobra.Command{
			Use:   "requests",
			Short: "List tracked requests",
			Args:  cobra.NoArgs,
			RunE:  diagRequests,
		},
		&cobra.Command{
			Use:   "request <id>",
			Short: "Show one tracked request",
			Args:  cobra.ExactArgs(1),
			RunE:  diagRequest,
		},
		&cobra.Command{
			Use:   "hanging",
			Short: "List requests exceeding a hang threshold",
			Args:  cobra.NoArgs,
			RunE:  diagHanging,
		},
		&cobra.Command{
			Use:   "leaks",
			Short: "List resources held by untracked requests",
			Args:  cobra.NoArgs,
			RunE:  diagLeaks,
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Run a sweep now",
			Args:  cobra.NoArgs,
			RunE:  diagSweep,
		},
		&cobra.Command{
			Use:   "cleanup [id]",
			Short: "Evict one request, or terminate every request with no id",
			Long: `With an id, evict that request from the registry and release its
tracked resources. With no id, terminate every live request with reason
force_cleanup and clear the registry.`,
			Args: cobra.MaximumNArgs(1),
			RunE: diagCleanup,
		},
	)

	waitCmd := &cobra.Command{
		Use:     "wait",
		Aliases: []string{"drain"},
		Short:   "Wait until no requests are active",
		Long: `Poll the relay until its active request count reaches zero.

Use this after taking a relay out of rotation and before restarting it.`,
		Args: cobra.NoArgs,
		RunE: diagWait,
	}
	waitCmd.Flags().DurationVar(&waitFlags.interval, "interval", time.Second, "poll interval")
	waitCmd.Flags().DurationVar(&waitFlags.timeout, "wait-timeout", 5*time.Minute, "give up after this long")
	diagCmd.AddCommand(waitCmd)
}

// diagSession bundles what every diag subcommand needs.
type diagSession struct {
	client    *diagnostics.Client
	formatter cli.Formatter
	cmd       *cobra.Command
}

func newDiagSession(cmd *cobra.Command) (*diagSession, error) {
	format, err := cli.ParseFormat(diagFlags.output)
	if err != nil {
		return nil, err
	}
	client, err := diagnostics.NewClient(diagFlags.addr, diagFlags.prefix, nil)
	if err != nil {
		return nil, err
	}
	return &diagSession{client: client, formatter: cli.NewFormatter(format), cmd: cmd}, nil
}

func (s *diagSession) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.cmd.Context(), diagFlags.timeout)
}

func (s *diagSession) write(table *cli.Table, raw any) error {
	return s.formatter.Write(s.cmd.OutOrStdout(), table, raw)
}

func diagMetrics(cmd *cobra.Command, args []string) error {
	s, err := newDiagSession(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()

	m, err := s.client.Metrics(ctx)
	if err != nil {
		return cli.NewCommandError("diag metrics", err)
	}
	return s.write(metricsTable(m), m)
}

func metricsTable(m diagnostics.Metrics) *cli.Table {
	t := &cli.Table{Headers: []string{"METRIC", "VALUE"}}
	t.Append("total_requests", m.TotalRequests)
	t.Append("completed_requests", m.CompletedRequests)
	t.Append("active_requests", m.ActiveRequests)
	t.Append("tracked_requests", m.TrackedRequests)
	t.Append("tracked_resources", m.TrackedResources)
	t.Append("hanging_requests", m.HangingRequests)
	t.Append("leaked_resources", m.LeakedResources)
	t.Append("timeout_events", m.TimeoutEvents)
	t.Append("race_events", m.RaceEvents)
	t.Append("hanging_rate", fmt.Sprintf("%.2f%%", m.HangingRate))
	t.Append("leak_rate", fmt.Sprintf("%.2f%%", m.LeakRate))
	t.Append("race_rate", fmt.Sprintf("%.2f%%", m.RaceRate))
	t.Append("timeout_conflict_rate", fmt.Sprintf("%.2f%%", m.TimeoutConflictRate))
	t.Append("uptime", m.Uptime.Truncate(time.Second))
	return t
}

func diagRequests(cmd *cobra.Command, args []string) error {
	s, err := newDiagSession(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()

	reqs, err := s.client.Requests(ctx)
	if err != nil {
		return cli.NewCommandError("diag requests", err)
	}
	return s.write(requestsTable(reqs, time.Now()), reqs)
}

func requestsTable(reqs []diagnostics.RequestInfo, now time.Time) *cli.Table {
	t := &cli.Table{Headers: []string{"ID", "KIND", "STATE", "REASON", "AGE", "RESOURCES"}}
	for _, r := range reqs {
		t.Append(r.ID, r.Kind, r.State, dash(string(r.Reason)), age(now, r.CreatedAt), len(r.Resources))
	}
	return t
}

func diagRequest(cmd *cobra.Command, args []string) error {
	s, err := newDiagSession(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()

	info, err := s.client.Request(ctx, args[0])
	if err != nil {
		return cli.NewCommandError("diag request", err)
	}

	t := &cli.Table{Headers: []string{"FIELD", "VALUE"}}
	t.Append("id", info.ID)
	t.Append("kind", info.Kind)
	t.Append("state", info.State)
	t.Append("reason", dash(string(info.Reason)))
	t.Append("created_at", info.CreatedAt.Format(time.RFC3339Nano))
	t.Append("last_activity", info.LastActivity.Format(time.RFC3339Nano))
	t.Append("completed", info.Completed)
	t.Append("resources", dash(strings.Join(info.Resources, ",")))
	t.Append("timeout_events", len(info.TimeoutEvents))
	t.Append("race_events", len(info.RaceEvents))
	for _, k := range slices.Sorted(maps.Keys(info.Metadata)) {
		t.Append("metadata."+k, info.Metadata[k])
	}
	if info.Details != "" {
		t.Append("details", info.Details)
	}
	return s.write(t, info)
}

func diagHanging(cmd *cobra.Command, args []string) error {
	s, err := newDiagSession(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()

	hanging, err := s.client.Hanging(ctx)
	if err != nil {
		return cli.NewCommandError("diag hanging", err)
	}
	return s.write(hangingTable(hanging), hanging)
}

func hangingTable(hanging []diagnostics.HangingRequest) *cli.Table {
	t := &cli.Table{Headers: []string{"ID", "KIND", "AGE", "INACTIVE", "TIMEOUTS", "RESOURCES", "REASONS"}}
	for _, h := range hanging {
		t.Append(h.ID, h.Kind, h.Age.Truncate(time.Millisecond), h.Inactivity.Truncate(time.Millisecond),
			h.TimeoutEvents, h.Resources, strings.Join(h.Reasons, ","))
	}
	return t
}

func diagLeaks(cmd *cobra.Command, args []string) error {
	s, err := newDiagSession(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()

	leaks, err := s.client.Leaks(ctx)
	if err != nil {
		return cli.NewCommandError("diag leaks", err)
	}
	t := &cli.Table{Headers: []string{"RESOURCE", "REQUESTS"}}
	for _, l := range leaks {
		t.Append(l.Key, strings.Join(l.RequestIDs, ","))
	}
	return s.write(t, leaks)
}

func diagSweep(cmd *cobra.Command, args []string) error {
	s, err := newDiagSession(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()

	res, err := s.client.Sweep(ctx)
	if err != nil {
		return cli.NewCommandError("diag sweep", err)
	}
	t := &cli.Table{Headers: []string{"RESULT", "VALUE"}}
	t.Append("evicted", res.Evicted)
	t.Append("hanging", len(res.Hanging))
	t.Append("leaks", len(res.Leaks))
	t.Append("active_requests", res.Metrics.ActiveRequests)
	t.Append("alerts", dash(strings.Join(res.Alerts, "; ")))
	return s.write(t, res)
}

func diagCleanup(cmd *cobra.Command, args []string) error {
	s, err := newDiagSession(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := s.context()
	defer cancel()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		if err := s.client.Cleanup(ctx, args[0]); err != nil {
			return cli.NewCommandError("diag cleanup", err)
		}
		fmt.Fprintf(out, "✓ Evicted %s\n", args[0])
		return nil
	}

	n, err := s.client.CleanupAll(ctx)
	if err != nil {
		return cli.NewCommandError("diag cleanup", err)
	}
	fmt.Fprintf(out, "✓ Terminated %d requests\n", n)
	return nil
}

func diagWait(cmd *cobra.Command, args []string) error {
	s, err := newDiagSession(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), waitFlags.timeout)
	defer cancel()

	progress := cli.NewDrainProgress(cmd.ErrOrStderr())
	err = waitIdle(ctx, s.client, waitFlags.interval, progress)
	if err != nil {
		progress.Error(err)
		if errors.Is(err, context.DeadlineExceeded) {
			return cli.NewCommandError("diag wait", fmt.Errorf("requests still active after %s", waitFlags.timeout))
		}
		return cli.NewCommandError("diag wait", err)
	}
	progress.Finish()
	fmt.Fprintln(cmd.OutOrStdout(), "✓ No active requests")
	return nil
}

// waitIdle polls until the relay reports no active requests.
func waitIdle(ctx context.Context, client *diagnostics.Client, interval time.Duration, progress *cli.DrainProgress) error {
	if interval <= 0 {
		interval = time.Second
	}
	poll := func() (int64, error) {
		callCtx, cancel := context.WithTimeout(ctx, diagFlags.timeout)
		defer cancel()
		m, err := client.Metrics(callCtx)
		if err != nil {
			return 0, err
		}
		return int64(m.ActiveRequests), nil
	}

	active, err := poll()
	if err != nil {
		return err
	}
	progress.Start(active)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for active > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if active, err = poll(); err != nil {
			return err
		}
		progress.Update(active)
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func age(now, t time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	return now.Sub(t).Truncate(time.Millisecond)
}
