package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/shardcached/shardcached/internal/config"
	"github.com/shardcached/shardcached/internal/handler"
	"github.com/shardcached/shardcached/internal/hashing"
	"github.com/shardcached/shardcached/internal/logging"
	"github.com/shardcached/shardcached/internal/server"
	"github.com/shardcached/shardcached/internal/stats"
	"github.com/shardcached/shardcached/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "shardcached",
		Short: "A sharded, in-memory cache speaking the memcached text protocol",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}

	config.BindFlags(rootCmd.Flags())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}

	log := logging.New(cfg.LogLevel)
	handler.Version = version

	hashFn, ok := hashing.ByName(cfg.HashFunc)
	if !ok {
		return errors.Errorf("unknown hash function %q", cfg.HashFunc)
	}

	st := stats.New(version, prometheus.DefaultRegisterer)

	engine := store.New(store.Config{
		NumShards:  cfg.NumShards,
		QueueDepth: cfg.ShardQueueDepth,
		SweepEvery: time.Duration(cfg.SweepIntervalMs) * time.Millisecond,
		HashFn:     hashFn,
	}, st)
	defer engine.Close()

	srv := server.New(server.Config{
		ListenAddr:  cfg.ListenAddr,
		AdminAddr:   cfg.AdminAddr,
		IdleTimeout: time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
		Engine:      engine,
		HandlerCfg: handler.Config{
			MaxOpsPerRequest: cfg.MaxOpsPerRequest,
			MaxValueBytes:    cfg.MaxValueBytes,
			MaxResponseBytes: cfg.MaxResponseBytes,
			Metrics:          st,
			Stats:            st,
		},
		Stats: st,
		Log:   log,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("shardcached starting", slog.String("version", version))
	if err := srv.Run(ctx); err != nil {
		return errors.Wrap(err, "server run")
	}
	return nil
}
