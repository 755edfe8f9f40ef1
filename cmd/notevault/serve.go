package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/notevault/internal/auth"
	"github.com/MarcoPoloResearchLab/notevault/internal/jobs"
	"github.com/MarcoPoloResearchLab/notevault/internal/presentation"
	"github.com/MarcoPoloResearchLab/notevault/internal/server"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// serveStack is everything the UI bridge runs on top of the application.
type serveStack struct {
	controller *presentation.Controller
	dispatcher *server.StateDispatcher
	purgeJob   *jobs.PurgeJob
	tokens     *auth.TokenIssuer
	handler    http.Handler
}

func newServeStack(app *application) (*serveStack, error) {
	controller, err := presentation.NewController(presentation.Config{
		Repository: app.repository,
		Clock:      app.clock,
		Logger:     app.logger,
	})
	if err != nil {
		return nil, err
	}

	purgeConfig := jobs.DefaultConfig()
	purgeConfig.RetentionPeriod = app.config.Retention
	purgeConfig.Schedule = app.config.PurgeSchedule
	purgeConfig.BatchSize = app.config.PurgeBatchSize
	purgeConfig.Clock = app.clock
	purgeConfig.Logger = app.logger
	purgeJob, err := jobs.NewPurgeJob(app.store, purgeConfig)
	if err != nil {
		return nil, err
	}

	secret := []byte(app.config.SigningSecret)
	if len(secret) == 0 {
		secret, err = auth.GenerateSigningSecret()
		if err != nil {
			return nil, err
		}
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: secret,
		TokenTTL:      app.config.TokenTTL,
	})
	if err != nil {
		return nil, err
	}

	dispatcher := server.NewStateDispatcher()
	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:   tokens,
		Controller:     controller,
		Dispatcher:     dispatcher,
		AllowedOrigins: app.config.AllowedOrigins,
		Logger:         app.logger,
	})
	if err != nil {
		return nil, err
	}

	return &serveStack{
		controller: controller,
		dispatcher: dispatcher,
		purgeJob:   purgeJob,
		tokens:     tokens,
		handler:    handler,
	}, nil
}

// start launches the controller and the state fan-out; they stop when ctx is done.
func (s *serveStack) start(ctx context.Context) {
	s.controller.Start(ctx)
	go s.dispatcher.Run(ctx, s.controller.Subscribe(ctx))
}

func (s *serveStack) stop() {
	s.controller.Stop()
}

func runServer(ctx context.Context, app *application, out io.Writer) error {
	stack, err := newServeStack(app)
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack.start(signalCtx)
	defer stack.stop()
	stack.purgeJob.Start()
	defer stack.purgeJob.Stop()

	token, expiresIn, err := stack.tokens.IssueLaunchToken(signalCtx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "UI bridge listening on http://%s\n", app.config.HTTPAddress)
	fmt.Fprintf(out, "launch token (valid %s): %s\n", time.Duration(expiresIn)*time.Second, token)

	httpServer := &http.Server{
		Addr:              app.config.HTTPAddress,
		Handler:           stack.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Stream handlers end with the server context instead of holding Shutdown open.
		BaseContext: func(net.Listener) context.Context { return signalCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		app.logger.Info("server stopping")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
