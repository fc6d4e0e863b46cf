package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/secmon-lab/pippin/pkg/activity"
	"github.com/secmon-lab/pippin/pkg/cli/config"
	httpctrl "github.com/secmon-lab/pippin/pkg/controller/http"
	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/service/episode"
	"github.com/secmon-lab/pippin/pkg/service/scheduler"
	"github.com/secmon-lab/pippin/pkg/service/worker"
	"github.com/secmon-lab/pippin/pkg/usecase"
	"github.com/secmon-lab/pippin/pkg/utils/logging"
	"github.com/secmon-lab/pippin/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var pacing time.Duration
	var snapshotInterval time.Duration
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var constraintsCfg config.Constraints

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("PIPPIN_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "pacing",
			Usage:       "Pause between scheduler cycles",
			Value:       scheduler.DefaultPacing,
			Sources:     cli.EnvVars("PIPPIN_PACING"),
			Destination: &pacing,
		},
		&cli.DurationFlag{
			Name:        "snapshot-interval",
			Usage:       "Interval between periodic state snapshots",
			Value:       time.Minute,
			Sources:     cli.EnvVars("PIPPIN_SNAPSHOT_INTERVAL"),
			Destination: &snapshotInterval,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, constraintsCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run the activity loop and the status feed server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			// Load and validate the constraint table
			constraints, err := constraintsCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load activity constraints")
			}

			// Initialize repository based on backend type
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer safe.Close(ctx, repo)

			// Initialize Gemini client if configured. Without it the
			// loop still runs; records simply carry no embedding.
			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure Gemini client")
			}

			var episodeOpts []episode.Option
			if llmClient != nil {
				episodeOpts = append(episodeOpts, episode.WithEmbedder(episode.NewLLMEmbedder(llmClient)))
				logging.Default().Info("Embedding enabled", "gemini", geminiCfg.LogAttrs())
			} else {
				logging.Default().Info("Gemini project not configured, similarity search will be disabled")
			}

			episodes := episode.New(repo, episodeOpts...)

			registry, err := activity.Registry()
			if err != nil {
				return goerr.Wrap(err, "failed to build activity registry")
			}

			state := model.NewCharacterState()

			engine := scheduler.NewConstraintEngine(constraints, episodes)
			selector := scheduler.NewSelector()
			executor := scheduler.NewExecutor(episodes)

			sched := scheduler.New(registry, state, engine, selector, executor,
				scheduler.WithPacing(pacing))
			if err := sched.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start scheduler")
			}

			snapshotWorker := worker.NewStateSnapshotWorker(episodes, state, snapshotInterval)
			if err := snapshotWorker.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start state snapshot worker")
			}

			uc := usecase.New(episodes, state, usecase.WithCurrentProvider(sched))

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc.Status),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			// Wait for shutdown signal or server error
			select {
			case err := <-errCh:
				sched.Stop()
				snapshotWorker.Stop()
				return err

			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				// Stop background loops before closing the repository
				sched.Stop()
				snapshotWorker.Stop()

				// Create shutdown context with timeout
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				// Attempt graceful shutdown
				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
