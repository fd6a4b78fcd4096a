package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grzechuj/RtspRestreamServer/internal/api"
	"github.com/grzechuj/RtspRestreamServer/internal/arbiter"
	"github.com/grzechuj/RtspRestreamServer/internal/auth"
	"github.com/grzechuj/RtspRestreamServer/internal/config"
	"github.com/grzechuj/RtspRestreamServer/internal/hooks"
	"github.com/grzechuj/RtspRestreamServer/internal/logger"
	"github.com/grzechuj/RtspRestreamServer/internal/rtsp"
)

func main() {
	cli, err := parseFlags(os.Args[1:])
	if err != nil {
		// flag package already printed usage/error
		os.Exit(2)
	}
	if cli.showVersion {
		fmt.Println(version)
		return
	}

	conf := config.Default()
	if cli.configPath != "" {
		conf, err = config.Load(cli.configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	cli.apply(conf)

	logger.Init()
	if err := logger.SetLevel(conf.Log.Level); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", conf.Log.Level)
	}
	log := logger.Logger().With("component", "cli")

	hm := hooks.NewManager(hooks.Config{
		Timeout:     conf.HookTimeout(),
		Concurrency: conf.Hooks.Concurrency,
		StdioFormat: conf.Hooks.StdioFormat,
	}, logger.Logger().With("component", "hooks"))
	registerHooks(hm, conf, log)

	arb := arbiter.New(arbiter.Config{
		MaxSubscribersPerPath: conf.RTSP.MaxSubscribersPerPath,
	}, lifecycleCallbacks(hm))

	server := rtsp.New(rtsp.Config{
		Listen:   conf.RTSP.Listen,
		MaxPaths: conf.RTSP.MaxPaths,
	}, arb, buildAuthorizer(conf))

	if err := server.Start(); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	var apiSrv *api.Server
	if conf.API.Enabled {
		apiSrv = api.New(conf.API.Listen, arb)
		if err := apiSrv.Start(); err != nil {
			log.Error("failed to start status API", "error", err)
			os.Exit(1)
		}
	}

	log.Info("server started", "addr", conf.RTSP.Listen, "version", version)

	// Set up signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Perform shutdown in a separate goroutine in case it blocks; we just wait or force exit on timeout.
	done := make(chan struct{})
	go func() {
		if apiSrv != nil {
			if err := apiSrv.Close(); err != nil {
				log.Error("status API stop error", "error", err)
			}
		}
		server.Close()
		arb.Close()
		if err := hm.Close(); err != nil {
			log.Error("hook manager stop error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("server stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}

// lifecycleCallbacks bridges arbiter transitions into hook events.
func lifecycleCallbacks(hm *hooks.Manager) arbiter.Callbacks {
	trigger := func(t hooks.EventType, user, path string) {
		ev := hooks.NewEvent(t).WithPath(path)
		if user != "" {
			ev = ev.WithUser(user)
		}
		hm.Trigger(context.Background(), *ev)
	}
	return arbiter.Callbacks{
		OnFirstSubscriber: func(user, path string) {
			trigger(hooks.EventFirstSubscriber, user, path)
		},
		OnLastSubscriber: func(path string) {
			trigger(hooks.EventLastSubscriber, "", path)
		},
		OnPublisherConnected: func(user, path string) {
			trigger(hooks.EventPublisherConnected, user, path)
		},
		OnPublisherDisconnected: func(path string) {
			trigger(hooks.EventPublisherDisconnected, "", path)
		},
	}
}

// registerHooks wires the configured webhooks and shell hooks into the
// manager. Unknown event names are skipped with a warning.
func registerHooks(hm *hooks.Manager, conf *config.Config, log *slog.Logger) {
	for i, w := range conf.Hooks.Webhooks {
		hook := hooks.NewWebhookHook(fmt.Sprintf("webhook-%d", i), w.URL, conf.HookTimeout())
		for _, t := range eventTypes(w.Events, log) {
			_ = hm.Register(t, hook)
		}
	}
	for i, sh := range conf.Hooks.Shell {
		hook := hooks.NewShellHook(fmt.Sprintf("shell-%d", i), sh.Command)
		for _, t := range eventTypes(sh.Events, log) {
			_ = hm.Register(t, hook)
		}
	}
}

// eventTypes resolves configured event names, defaulting to all lifecycle
// events when the list is empty.
func eventTypes(names []string, log *slog.Logger) []hooks.EventType {
	if len(names) == 0 {
		return hooks.AllEventTypes
	}
	var out []hooks.EventType
	for _, n := range names {
		known := false
		for _, t := range hooks.AllEventTypes {
			if string(t) == n {
				out = append(out, t)
				known = true
				break
			}
		}
		if !known {
			log.Warn("unknown hook event name, skipping", "event", n)
		}
	}
	return out
}

// buildAuthorizer returns an open authorizer when no auth is configured,
// matching the behavior of a server run without an auth section.
func buildAuthorizer(conf *config.Config) auth.Authorizer {
	if len(conf.Auth.Users) == 0 && !conf.Auth.AllowAnonymous {
		return auth.AllowAll{}
	}
	return auth.NewStatic(conf.Auth)
}
