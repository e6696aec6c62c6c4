package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/trickpatty/hearthsync/pkg/cli/config"
	httpctrl "github.com/trickpatty/hearthsync/pkg/controller/http"
	"github.com/trickpatty/hearthsync/pkg/service/notify"
	"github.com/trickpatty/hearthsync/pkg/service/scheduler"
	"github.com/trickpatty/hearthsync/pkg/usecase"
	"github.com/trickpatty/hearthsync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var repoCfg config.Repository
	var providersCfg config.Providers
	var schedCfg config.Scheduler
	var notifierCfg config.Notifier

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("HEARTHSYNC_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, providersCfg.Flags()...)
	flags = append(flags, schedCfg.Flags()...)
	flags = append(flags, notifierCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server and sync scheduler",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			registry, err := providersCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure providers")
			}

			hub := notify.NewHub()
			sched := scheduler.New(repo, registry, hub, schedCfg.Options()...)
			uc := usecase.New(repo, registry, hub, sched)

			if err := sched.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start sync scheduler")
			}

			handler := httpctrl.New(uc, hub,
				httpctrl.WithSubscriberWriteTimeout(notifierCfg.WriteTimeout()))
			server := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				sched.Stop()
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				// Stop the scheduler first so no sync commits race the shutdown
				sched.Stop()
				hub.Shutdown("server shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
