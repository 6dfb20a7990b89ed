// Command pykuang runs the generator, XFR, and scanner facilities
// against a local store and cache, continuously discovering hosts on
// the Internet and probing the services they run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/krylon/pykuang/internal/cache"
	"github.com/krylon/pykuang/internal/nexus"
	"github.com/krylon/pykuang/internal/store"
	"github.com/krylon/pykuang/internal/web"
	"github.com/krylon/pykuang/pkg/applog"
	"github.com/krylon/pykuang/pkg/config"
)

var (
	genCount  = flag.Int("g", 4, "generator worker count")
	xfrCount  = flag.Int("x", 2, "XFR worker count")
	scanCount = flag.Int("s", 4, "scanner worker count")
	baseDir   = flag.String("b", "", "base directory (default ~/.pykuang.d)")
)

// shutdownGrace bounds how long main waits for the Nexus to drain once
// a shutdown signal arrives.
const shutdownGrace = 30 * time.Second

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pykuang:", err)
		os.Exit(1)
	}
}

func run() error {
	paths := config.NewPaths(*baseDir)
	if err := paths.EnsureDirs(); err != nil {
		return fmt.Errorf("prepare base directory: %w", err)
	}

	if err := applog.Init(paths.Base, true); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	log := applog.Get("main")

	cfg, err := config.Load(paths.ConfigFile())
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	gcnt := resolveCount(*genCount, cfg.Generator.Active, cfg.Generator.Parallel, 4)
	xcnt := resolveCount(*xfrCount, cfg.XFR.Active, cfg.XFR.Parallel, 2)
	scnt := resolveCount(*scanCount, cfg.Scanner.Active, cfg.Scanner.Parallel, 4)

	env, err := cache.Open(paths.CacheFile())
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = env.Close() }()

	db, err := store.Open(paths.DB())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	n := nexus.New(gcnt, xcnt, scnt, env, paths.DB())
	n.Start()
	log.Printf("pykuang is running: %d generator, %d xfr, %d scanner workers", gcnt, xcnt, scnt)

	var webSrv *web.Server
	if cfg.Web.Active {
		addr := fmt.Sprintf("%s:%d", cfg.Web.Addr, cfg.Web.Port)
		webSrv = web.New(db, addr)
		webSrv.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Printf("shutdown signal received, draining")
	n.Stop()

	if webSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := webSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("web inspector shutdown: %s", err)
		}
	}

	done := make(chan struct{})
	go func() {
		n.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("clean shutdown")
	case <-time.After(shutdownGrace):
		log.Printf("shutdown grace period elapsed, exiting anyway")
	}

	return nil
}

// resolveCount applies the CLI-overrides-config precedence from
// spec.md §6: a flag value that differs from its default (fallback)
// wins; otherwise the config's Parallel value is used when its facility
// is Active, falling back to fallback. A flag explicitly set to its
// default value is not told apart from an unset flag, so in that case
// an Active config's Parallel value wins.
func resolveCount(flagVal int, active bool, configured, fallback int) int {
	if flagVal != fallback {
		return flagVal
	}
	if active && configured > 0 {
		return configured
	}
	return fallback
}
