package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/scrob/internal/server"
	"github.com/desertthunder/scrob/internal/shared"
	"github.com/desertthunder/scrob/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Run starts the engine, the session watcher and the ingest API, and blocks until SIGINT/SIGTERM.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	return r.serve(ctx, nil)
}

// Status prints the status of a running daemon.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	resp, err := r.daemon().Get(ctx, "/status")
	if err != nil {
		return fmt.Errorf("%w: daemon not reachable at %s: %v", shared.ErrServiceUnavailable, r.config.Server.Addr(), err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: status %d, body: %s", shared.ErrAPIRequest, resp.StatusCode, string(resp.Body))
	}

	var status tasks.Status
	if err := resp.Decode(&status); err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	r.writePlain("State:        %s\n", status.State)
	r.writePlain("Running:      %t\n", status.Running)
	r.writePlain("Connected:    %t\n", status.Connected)
	r.writePlain("Queued:       %d\n", status.Queued)
	r.writePlain("Last submit:  %s\n", shared.HumanTime(status.LastSubmission))
	if !status.NextRetry.IsZero() {
		r.writePlain("Next retry:   %s\n", shared.HumanTime(status.NextRetry))
	}
	if status.LastError != "" {
		r.writePlain("Last error:   %s\n", status.LastError)
	}
	return nil
}

// serve runs the daemon. attach, when non-nil, runs alongside it and ends the daemon when it returns.
// Without attach, engine events are written to the log.
func (r *Runner) serve(ctx context.Context, attach func(ctx context.Context) error) error {
	if err := r.openEngine(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.engine.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.session.Watch(gctx) })
	g.Go(func() error { return r.superviseSession(gctx) })

	if r.config.Server.Enabled {
		srv := server.New(r.config.Server.Addr(), r.router(), r.logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if attach != nil {
		g.Go(func() error {
			defer stop()
			return attach(gctx)
		})
	} else {
		g.Go(func() error { return r.logEvents(gctx) })
	}

	r.logger.Info("daemon running", "queued", r.queue.Count(), "server", r.config.Server.Enabled)
	err := g.Wait()

	if stopErr := r.engine.Stop(); stopErr != nil {
		r.logger.Error("failed to stop engine", "error", stopErr)
	}
	return err
}

// router builds the ingest API with the standard middleware stack.
func (r *Runner) router() *server.BasicRouter {
	router := server.NewBasicRouter()
	router.Use(server.RecoverMiddleware(r.logger), server.LoggingMiddleware(r.logger))
	router.Handler(server.NewIngestHandler(r.engine, r.queue, r.logger, nil))
	return router
}

// superviseSession restarts the engine whenever the session provider reports a new key.
func (r *Runner) superviseSession(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.session.Updated():
			if err := r.reloadSession(); err != nil {
				r.logger.Error("failed to restart engine", "error", err)
			}
		}
	}
}

func (r *Runner) logEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-r.events:
			switch ev.Kind {
			case tasks.AuthFailure:
				r.logger.Error(ev.Message, "event", ev.Kind)
			default:
				r.logger.Info(ev.Message, "event", ev.Kind, "count", ev.Count)
			}
		}
	}
}
