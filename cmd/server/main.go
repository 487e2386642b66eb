// Command server runs the login form web application.
//
// Usage:
//
//	server [--no-identity] [--test] [--addr :8080]
//
// Configuration comes from environment variables (IDENTITY_URL and friends);
// see internal/config. With --no-identity the identity fetch service is
// replaced by a fake that resolves every submission with a canned identity.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuitang/loginform/internal/config"
	"github.com/kuitang/loginform/internal/identity"
	"github.com/kuitang/loginform/internal/loginform"
	"github.com/kuitang/loginform/internal/obs"
	"github.com/kuitang/loginform/internal/ratelimit"
	"github.com/kuitang/loginform/internal/web"
)

func main() {
	obs.Init()
	log := obs.Pkg("main")

	noIdentity, addr := config.ParseFlags()
	cfg := config.MustLoadConfig(noIdentity, addr)
	cfg.PrintStartupSummary()

	renderer, err := web.NewRenderer(cfg.TemplatesDir)
	if err != nil {
		log.Error("template_init_failed", "dir", cfg.TemplatesDir, "error", err.Error())
		os.Exit(1)
	}

	var fetcher identity.Fetcher
	if cfg.NoIdentity {
		fetcher = identity.NewFakeFetcher()
		log.Info("identity_fetcher_faked")
	} else {
		fetcher = identity.NewClient(cfg.IdentityURL, cfg.IdentityTimeout)
	}

	forms := loginform.NewRegistry(func() *loginform.Controller {
		return loginform.NewController(fetcher)
	}, cfg.FormIdleTTL)
	defer forms.Stop()

	limiter := ratelimit.NewAttemptLimiter(cfg.RateLimitConfig)
	defer limiter.Stop()

	mux := http.NewServeMux()
	handler := web.NewFormHandler(renderer, forms, limiter, cfg.RequireSecureCookies())
	handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           obs.RequestContextMiddleware(obs.AccessLogMiddleware("web", mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server_listening", "addr", cfg.ListenAddr, "login_url", cfg.LoginURL())
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.Info("server_shutting_down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server_failed", "error", err.Error())
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server_shutdown_failed", "error", err.Error())
	}
	log.Info("server_stopped")
}
