package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vasilev-labs/scrapecore/internal/config"
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/logger"
	"github.com/vasilev-labs/scrapecore/internal/orchestrator"
	"github.com/vasilev-labs/scrapecore/internal/version"
	"github.com/vasilev-labs/scrapecore/pkg/format"
	"github.com/vasilev-labs/scrapecore/theme"
)

// CLIError carries the process exit code a command should terminate with,
// so main can map failures to the exit codes documented for the CLI
// (spec.md §6): 1 for config/setup errors, 2 for a command reporting a
// failed job or circuit, 3 for a timeout waiting on proxies or a job.
type CLIError struct {
	Code int
	Err  error
}

func (e *CLIError) Error() string { return e.Err.Error() }
func (e *CLIError) Unwrap() error { return e.Err }

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var cliErr *CLIError
	if ok := asCLIError(err, &cliErr); ok {
		return cliErr.Code
	}
	return 1
}

func asCLIError(err error, target **CLIError) bool {
	for err != nil {
		if cliErr, ok := err.(*CLIError); ok {
			*target = cliErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func main() {
	vlog := log.New(log.Writer(), "", 0)

	root := &cobra.Command{
		Use:           version.Name,
		Short:         version.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				version.PrintVersionInfo(true, vlog)
				os.Exit(0)
			}
			return nil
		},
	}
	root.PersistentFlags().Bool("version", false, "print version information and exit")

	root.AddCommand(newRunCommand(vlog))
	root.AddCommand(newRefreshProxiesCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newResetCircuitCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// setup builds a logger and config the same way for every subcommand, so
// `run`, `refresh-proxies`, `status` and `reset-circuit` all observe the
// same hot-reloadable configuration.
func setup() (*config.Config, logger.Logger, func(), error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, nil, nil, &CLIError{Code: 1, Err: fmt.Errorf("loading config: %w", err)}
	}

	lcfg := &logger.Config{
		Level:      cfg.Logging.Level,
		LogDir:     cfg.Logging.LogDir,
		Theme:      cfg.Logging.Theme,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		FileOutput: cfg.Logging.FileOutput,
		PrettyLogs: cfg.Logging.Format == "pretty",
	}
	slogger, cleanup, err := logger.New(lcfg)
	if err != nil {
		return nil, nil, nil, &CLIError{Code: 1, Err: fmt.Errorf("initialising logger: %w", err)}
	}
	slog.SetDefault(slogger)

	var log logger.Logger
	if lcfg.PrettyLogs {
		log = logger.NewPrettyStyledLogger(slogger, theme.GetTheme(cfg.Logging.Theme))
	} else {
		log = logger.NewPlainStyledLogger(slogger)
	}

	return cfg, log, cleanup, nil
}

// newRunCommand starts the full pipeline: proxy lifecycle engine, rotator,
// broker worker pool, checkpoint flushing and the /metrics listener, and
// blocks until SIGINT/SIGTERM (spec.md §6 `run`).
func newRunCommand(vlog *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scraping pipeline until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			version.PrintVersionInfo(false, vlog)

			cfg, log, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			log.Info("initialising", "version", version.Version, "pid", os.Getpid())

			orch, err := orchestrator.New(cfg, log)
			if err != nil {
				return &CLIError{Code: 1, Err: fmt.Errorf("building orchestrator: %w", err)}
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				log.Info("shutdown signal received", "signal", sig.String())
				cancel()
			}()

			if err := orch.Start(ctx); err != nil {
				return &CLIError{Code: 1, Err: fmt.Errorf("starting orchestrator: %w", err)}
			}

			for _, site := range cfg.Sites {
				if _, err := orch.Dispatcher().Dispatch(ctx, site.Name, site.SeedURLs); err != nil {
					log.Error("failed to dispatch seed URLs", "site", site.Name, "error", err)
				}
			}

			<-ctx.Done()

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()
			if err := orch.Stop(stopCtx); err != nil {
				log.Error("error during shutdown", "error", err)
				return &CLIError{Code: 1, Err: err}
			}

			log.Info("scrapecore has shutdown")
			return nil
		},
	}
}

// newRefreshProxiesCommand runs one proxy lifecycle refresh and waits for
// at least one eligible proxy to publish before exiting (spec.md §6
// `refresh-proxies`).
func newRefreshProxiesCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "refresh-proxies",
		Short: "Refresh the proxy pool and exit once it's populated",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			orch, err := orchestrator.New(cfg, log)
			if err != nil {
				return &CLIError{Code: 1, Err: fmt.Errorf("building orchestrator: %w", err)}
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := orch.Start(ctx); err != nil {
				return &CLIError{Code: 1, Err: fmt.Errorf("starting orchestrator: %w", err)}
			}
			defer orch.Stop(context.Background())

			waitCtx, waitCancel := context.WithTimeout(ctx, timeout)
			defer waitCancel()
			if err := orch.WaitForProxies(waitCtx); err != nil {
				return &CLIError{Code: 3, Err: fmt.Errorf("timed out waiting for live proxies: %w", err)}
			}

			log.Info("proxy pool populated")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long to wait for a live proxy")
	return cmd
}

// newStatusCommand reports a dispatched job's progress (spec.md §6
// `status`). Exits 2 if the job failed, 0 otherwise.
func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [job_id]",
		Short: "Report the status of a dispatched scrape job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			orch, err := orchestrator.New(cfg, log)
			if err != nil {
				return &CLIError{Code: 1, Err: fmt.Errorf("building orchestrator: %w", err)}
			}

			job, err := orch.Store().GetJob(cmd.Context(), args[0])
			if err != nil {
				return &CLIError{Code: 1, Err: fmt.Errorf("looking up job %s: %w", args[0], err)}
			}

			age := time.Since(job.CreatedAt)
			fmt.Printf("job=%s status=%s progress=%.0f%% done=%d failed=%d total=%d age=%s\n",
				job.ID, job.Status, job.Progress()*100, job.DoneChunks, job.FailedChunks, job.TotalChunks, format.Duration(age))

			if job.Status == domain.JobFailed {
				return &CLIError{Code: 2, Err: fmt.Errorf("job %s failed", job.ID)}
			}
			return nil
		},
	}
}

// newResetCircuitCommand forces a domain's circuit breaker back to CLOSED
// (spec.md §6 `reset-circuit`).
func newResetCircuitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-circuit [domain]",
		Short: "Reset a domain's circuit breaker to CLOSED",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			orch, err := orchestrator.New(cfg, log)
			if err != nil {
				return &CLIError{Code: 1, Err: fmt.Errorf("building orchestrator: %w", err)}
			}

			if err := orch.Breaker().Reset(cmd.Context(), args[0]); err != nil {
				return &CLIError{Code: 2, Err: fmt.Errorf("resetting circuit for %s: %w", args[0], err)}
			}

			log.Info("circuit reset", "domain", args[0])
			return nil
		},
	}
}
