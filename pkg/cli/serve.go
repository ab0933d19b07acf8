package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/punchcard/pkg/cli/config"
	httpctrl "github.com/secmon-lab/punchcard/pkg/controller/http"
	"github.com/secmon-lab/punchcard/pkg/service/slack"
	"github.com/secmon-lab/punchcard/pkg/service/worker"
	"github.com/secmon-lab/punchcard/pkg/usecase"
	"github.com/secmon-lab/punchcard/pkg/utils/async"
	"github.com/secmon-lab/punchcard/pkg/utils/logging"
	"github.com/secmon-lab/punchcard/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdServe(version string) *cli.Command {
	var addr string
	var sweepInterval time.Duration
	var markAbandoned bool
	var shutdownTimeout time.Duration
	var backendCfg backendConfig
	var slackCfg config.Slack
	var sentryCfg config.Sentry
	var metricsCfg config.Metrics
	var storageCfg config.Storage

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("PUNCHCARD_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "sweep-interval",
			Usage:       "Interval of the stale session sweep, 0 disables it",
			Value:       time.Hour,
			Sources:     cli.EnvVars("PUNCHCARD_SWEEP_INTERVAL"),
			Destination: &sweepInterval,
		},
		&cli.BoolFlag{
			Name:        "mark-abandoned",
			Usage:       "Write ABANDONED to the end cell of stale rows during sweeps",
			Sources:     cli.EnvVars("PUNCHCARD_MARK_ABANDONED"),
			Destination: &markAbandoned,
		},
		&cli.DurationFlag{
			Name:        "shutdown-timeout",
			Usage:       "Time allowed for in-flight commands on shutdown",
			Value:       60 * time.Second,
			Sources:     cli.EnvVars("PUNCHCARD_SHUTDOWN_TIMEOUT"),
			Destination: &shutdownTimeout,
		},
	}

	// Add shared config flags
	flags = append(flags, backendCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)
	flags = append(flags, metricsCfg.Flags()...)
	flags = append(flags, storageCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server receiving Slack slash commands",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if !slackCfg.IsWebhookConfigured() {
				return goerr.Wrap(config.ErrInvalidConfig, "slack-signing-secret is required")
			}
			commands, err := slackCfg.Commands()
			if err != nil {
				return err
			}

			flush, err := sentryCfg.Configure(version)
			if err != nil {
				return err
			}
			defer flush()

			be, err := backendCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer be.Close(context.Background())

			slackSvc, err := slackCfg.Configure()
			if err != nil {
				return err
			}

			archiveClient, err := storageCfg.Configure(ctx)
			if err != nil {
				return err
			}
			if archiveClient != nil {
				defer safe.Close(context.Background(), archiveClient)
			}

			m := metricsCfg.Configure()

			ucOpts := []usecase.Option{usecase.WithCommandSet(commands)}
			if slackSvc != nil {
				ucOpts = append(ucOpts, usecase.WithSlackService(slackSvc))
				logging.Default().Info("Slack service enabled")
			} else {
				logging.Default().Warn("Slack Bot Token not configured, display names fall back to command payload and setup is disabled")
			}
			ucOpts = append(ucOpts, metricsOption(m)...)
			ucOpts = append(ucOpts, archiveOption(archiveClient)...)

			uc := usecase.New(be.store, be.ledger, ucOpts...)

			if err := be.seed(ctx, uc, &backendCfg.orgs); err != nil {
				return err
			}

			var sweeper *worker.StaleSessionWorker
			if sweepInterval > 0 {
				sweeper = worker.NewStaleSessionWorker(uc.Sweep, sweepInterval, usecase.SweepOptions{MarkAbandoned: markAbandoned})
				if err := sweeper.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start stale session worker")
				}
			}

			dispatcher := async.NewDispatcher()
			commandHandler := httpctrl.NewSlackCommandHandler(uc.Command, slack.NewResponderFactory(nil), dispatcher)

			httpOpts := []httpctrl.Options{
				httpctrl.WithSlackCommand(commandHandler, slackCfg.SigningSecret()),
				httpctrl.WithHealthCheck("repository", be.store.Ping),
			}
			if m != nil {
				httpOpts = append(httpOpts, httpctrl.WithMetrics(m))
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server",
					"addr", addr,
					"slack", slackCfg,
					"repository", backendCfg.repo,
					"sheets", backendCfg.sheets)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				if sweeper != nil {
					sweeper.Stop()
				}
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				if sweeper != nil {
					sweeper.Stop()
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}
				// Commands already acknowledged still owe their final message
				if err := dispatcher.Wait(shutdownCtx); err != nil {
					logging.Default().Warn("in-flight commands abandoned at shutdown", "error", err.Error())
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
