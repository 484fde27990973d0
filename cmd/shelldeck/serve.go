package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/shelldeck/internal/config"
	"github.com/asheshgoplani/shelldeck/internal/logging"
	"github.com/asheshgoplani/shelldeck/internal/project"
	"github.com/asheshgoplani/shelldeck/internal/ptyhost"
	"github.com/asheshgoplani/shelldeck/internal/session"
	"github.com/asheshgoplani/shelldeck/internal/web"
	"github.com/asheshgoplani/shelldeck/internal/workspace"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	listen   string
	token    string
	readOnly bool
	push     bool
	subject  string
	debug    bool
}

func parseServeFlags(cfg *config.Config, args []string) (serveOptions, error) {
	webCfg := cfg.WebConfig()

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", webCfg.Listen, "Listen address")
	token := fs.String("token", webCfg.Token, "Token required on /ws and /api (query ?token= or bearer)")
	readOnly := fs.Bool("read-only", webCfg.ReadOnly, "Reject input and tab changes from clients")
	push := fs.Bool("push", webCfg.Push, "Send web push notifications for background tabs")
	subject := fs.String("push-subject", webCfg.PushSubject, "VAPID subject (mailto: or https: URL)")
	debug := fs.Bool("debug", os.Getenv(debugEnv) != "", "Log at debug level to stderr")

	fs.Usage = func() {
		fmt.Println("Usage: shelldeck serve [options]")
		fmt.Println()
		fmt.Println("Restore the saved tabs and serve them over a websocket at /ws.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := parseFlags(fs, args); err != nil {
		return serveOptions{}, err
	}
	if fs.NArg() > 0 {
		return serveOptions{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return serveOptions{
		listen:   *listen,
		token:    *token,
		readOnly: *readOnly,
		push:     *push,
		subject:  *subject,
		debug:    *debug,
	}, nil
}

func handleServe(args []string) {
	if err := runServe(args); err != nil {
		fatal(err)
	}
}

func runServe(args []string) error {
	cfg := loadConfig()
	opts, err := parseServeFlags(cfg, args)
	if err != nil {
		return err
	}

	logCfg, err := cfg.LogConfig(opts.debug)
	if err != nil {
		return err
	}
	logCfg.Stderr = opts.debug
	logging.Init(logCfg)
	defer logging.Shutdown()
	log := logging.ForComponent(logging.CompWeb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	stopDump := watchDumpSignal(logCfg.LogDir)
	defer stopDump()

	db, err := openStateDB()
	if err != nil {
		return err
	}
	defer db.Close()

	projects, err := project.NewRegistry(db, project.NewDetector())
	if err != nil {
		return err
	}
	watcher, err := project.NewWatcher(projects.Invalidate)
	if err != nil {
		return fmt.Errorf("project watcher: %w", err)
	}
	for _, p := range projects.List() {
		if err := watcher.Add(p.Path); err != nil {
			log.Warn("project_watch_failed", slog.String("path", p.Path), slog.String("error", err.Error()))
		}
	}

	cols, rows := cfg.Geometry()
	ws := workspace.New(workspace.Options{
		Registry:   session.NewRegistry(ptyhost.NewPTYHost(), cfg.SessionConfig()),
		Classifier: cfg.Classifier(),
		Policy:     cfg.TitlePolicy(),
		Store:      db,
		Projects:   projects,
		Cols:       cols,
		Rows:       rows,
	})
	if err := ws.Restore(ctx); err != nil {
		// Failed tabs stay open showing their error.
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	var push *web.PushService
	if opts.push {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		keys, generated, err := web.EnsureVAPIDKeys(dir, opts.subject)
		if err != nil {
			return fmt.Errorf("failed to prepare web push keys: %w", err)
		}
		if generated {
			fmt.Println("Push keys: generated new VAPID keypair")
		}
		push = web.NewPushService(dir, keys, web.PushOptions{Token: opts.token})
	}

	server := web.NewServer(web.Config{
		ListenAddr: opts.listen,
		Token:      opts.token,
		ReadOnly:   opts.readOnly,
		Push:       push,
	}, ws)
	fmt.Printf("shelldeck v%s serving %d tab(s) on http://%s\n", Version, len(ws.Snapshot().Tabs), server.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		watcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := projects.ResolveAll(gctx); err != nil && gctx.Err() == nil {
			log.Warn("project_resolve_failed", slog.String("error", err.Error()))
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	serveErr := g.Wait()
	if err := ws.Shutdown(); err != nil {
		log.Error("workspace_save_failed", slog.String("error", err.Error()))
	}
	return serveErr
}
