package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskguard/internal/app/analysis"
	"taskguard/internal/infra/observability"
	"taskguard/internal/shared/async"
	jsonx "taskguard/internal/shared/json"
)

type runOptions struct {
	company  string
	industry string
	retries  int
	asJSON   bool
	timeout  time.Duration
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [request.yaml]",
		Short: "Run the competitive analysis pipeline",
		Long: `Run research, analysis and synthesis for a company.

The request is read from a YAML file with company, industry, retries and
optional fail_attempts keys. Flags override values from the file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd, root, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.company, "company", "", "Company to analyze")
	f.StringVar(&opts.industry, "industry", "", "Industry sector")
	f.IntVar(&opts.retries, "retries", 0, "Attempts per phase (default engine.max_retries)")
	f.Int("max-retries", 0, "Default attempts per phase")
	f.String("estimator", "", "Token estimator (chars|tiktoken)")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	f.BoolVar(&opts.asJSON, "json", false, "Print the result as JSON")
	f.DurationVar(&opts.timeout, "timeout", 0, "Abort the run after this long")
	return cmd
}

func runAnalysis(cmd *cobra.Command, root *rootOptions, opts *runOptions, args []string) error {
	cfg, err := root.loadConfig(cmd)
	if err != nil {
		return err
	}
	req, err := resolveRequest(args, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	c, err := buildContainer(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Shutdown(shutdownCtx); err != nil {
			c.Logger.Warn("%v", err)
		}
	}()

	if addr := cfg.Metrics.Addr; addr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		async.Go(c.Logger, "metrics server", func() error {
			return observability.Serve(metricsCtx, addr, c.Registry, c.Logger)
		})
	}

	agent, err := analysis.NewAgent(c.Workspace, c.Runner, analysis.WithLogger(c.componentLogger("analysis")))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printBanner(out, fmt.Sprintf("Starting competitive analysis for %s in %s", req.Company, req.Industry))
	summary, runErr := agent.Analyze(ctx, req)
	if summary == nil {
		return runErr
	}

	if opts.asJSON {
		data, err := jsonx.MarshalIndentLine(summary)
		if err != nil {
			return err
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
		return runErr
	}
	printSummary(out, summary, runErr)
	return runErr
}

// resolveRequest merges the optional request file with flag overrides.
func resolveRequest(args []string, opts *runOptions) (analysis.Request, error) {
	var req analysis.Request
	if len(args) == 1 {
		loaded, err := analysis.LoadRequest(args[0])
		if err != nil {
			return analysis.Request{}, err
		}
		req = loaded
	}
	if opts.company != "" {
		req.Company = opts.company
	}
	if opts.industry != "" {
		req.Industry = opts.industry
	}
	if opts.retries > 0 {
		req.Retries = opts.retries
	}
	if err := req.Validate(); err != nil {
		return analysis.Request{}, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}
