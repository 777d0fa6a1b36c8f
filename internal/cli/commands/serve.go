package commands

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gometr/gometr/internal/cli/config"
	"github.com/gometr/gometr/internal/driver/registry"
	"github.com/gometr/gometr/internal/store"
	"github.com/gometr/gometr/internal/watch"
	"github.com/gometr/gometr/internal/web/auth"
	"github.com/gometr/gometr/internal/web/cache"
	"github.com/gometr/gometr/internal/web/server"
	"github.com/gometr/gometr/internal/web/websocket"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the instrument control server",
		Long: `Serve the control API: driver catalog, live instrument
sessions, acquisition control, trace history, and the websocket event
stream. Configuration comes from gometr.yml and GOMETR_* environment
variables.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (overrides gometr.yml)")
	cmd.Flags().Bool("watch", true, "Reload drivers when driver files change")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := registry.New(logger)
	if err := reg.LoadDir(cfg.DriverDir); err != nil {
		return fmt.Errorf("load drivers from %s: %w", cfg.DriverDir, err)
	}
	logger.Info("drivers loaded", zap.Strings("names", reg.Names()))

	var c cache.Cache
	if cfg.Cache.Backend == "redis" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			Config:   cache.DefaultConfig(),
		})
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		c = rc
	} else {
		c = cache.NewMemoryCache()
	}

	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path, logger)
		if err != nil {
			return fmt.Errorf("open trace store: %w", err)
		}
		defer st.Close()
	}

	var authSvc *auth.Service
	if cfg.Server.AuthSecret != "" {
		authSvc = auth.NewService(cfg.Server.AuthSecret, cfg.Server.TokenTTL)
	}

	srv := server.New(server.Config{
		Registry: reg,
		Cache:    c,
		Store:    st,
		Auth:     authSvc,
		Logger:   logger,
		Interval: cfg.Acquire.Interval,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watchDrivers, _ := cmd.Flags().GetBool("watch"); watchDrivers {
		watcher, err := watch.New(cfg.DriverDir, reg,
			watch.WithLogger(logger),
			watch.WithDebounce(200*time.Millisecond),
			watch.WithOnReload(func(files []string) {
				// Stale cached trees would no longer match the registry.
				for _, name := range reg.Names() {
					c.Delete(ctx, cache.TreeKey(name))
				}
				srv.Hub().Broadcast(websocket.TypeDriverSet, map[string]any{
					"files":   files,
					"drivers": reg.Names(),
				})
			}))
		if err != nil {
			return fmt.Errorf("start driver watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Server.Addr()
	}
	if err := srv.Run(ctx, addr); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
