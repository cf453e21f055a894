// Command salesys-proxy runs the forwarding proxy used by the hosted tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/salesys-blacklist/internal/config"
	"github.com/Sternrassler/salesys-blacklist/pkg/logging"
	"github.com/Sternrassler/salesys-blacklist/pkg/proxy"
	"github.com/Sternrassler/salesys-blacklist/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func newRootCmd() *cobra.Command {
	var configFile, listenAddr string

	root := &cobra.Command{
		Use:          "salesys-proxy",
		Short:        "Forwarding proxy for the SaleSys exclude-lists API",
		Version:      fmt.Sprintf("%s (built %s)", version, buildTime),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Proxy.ListenAddr = listenAddr
			}

			logger := logging.Setup(cfg.LoggingConfig()).With().Str("component", "salesys-proxy").Logger()

			srv, cleanup, err := newServer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			return serve(cmd.Context(), srv, cfg.Proxy.ListenAddr, logger)
		},
	}

	root.Flags().StringVarP(&configFile, "config", "c", "", "Path to configuration file")
	root.Flags().StringVar(&listenAddr, "listen", "", "Listen address override")
	return root
}

// newServer wires the proxy with a Redis-backed rate limit store when
// proxy.redis_addr is set and an in-process store otherwise.
func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*proxy.Server, func(), error) {
	var (
		store   ratelimit.Store
		ready   func(context.Context) error
		cleanup = func() {}
	)

	if cfg.Proxy.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:        cfg.Proxy.RedisAddr,
			DialTimeout: 2 * time.Second,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Proxy.RedisAddr, err)
		}
		logger.Info().Str("addr", cfg.Proxy.RedisAddr).Msg("Connected to Redis")

		redisStore := ratelimit.NewRedisStore(rdb)
		store, ready = redisStore, redisStore.Ping
		cleanup = func() { rdb.Close() }
	} else {
		store = ratelimit.NewMemoryStore()
	}

	tracker := ratelimit.NewTracker(store, logger.With().Str("component", "ratelimit").Logger())
	srv := proxy.NewServer(proxy.Config{
		AllowedHosts: cfg.Proxy.AllowedHosts,
		Timeout:      cfg.Proxy.Timeout,
		UserAgent:    "salesys-proxy/" + version,
	}, tracker, logger)
	srv.SetReadinessCheck(ready)

	return srv, cleanup, nil
}

func serve(ctx context.Context, srv *proxy.Server, addr string, logger zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(addr); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Graceful shutdown failed")
			return err
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
