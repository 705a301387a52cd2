package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jrife/skv/config"
	"github.com/jrife/skv/metrics"
	"github.com/jrife/skv/query"
	"github.com/jrife/skv/registry"
	"github.com/jrife/skv/server"
	skvhttp "github.com/jrife/skv/server/http"
	"github.com/jrife/skv/storage/kv"
	"github.com/jrife/skv/storage/kv/plugins"
	"github.com/jrife/skv/storage/mvcc"
	"github.com/jrife/skv/txn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	metaStore = []byte("meta")
	dataStore = []byte("data")
)

type flags struct {
	configPath string
	addr       string
	driver     string
	path       string
	logLevel   string
	logJSON    bool
}

func newRootCommand() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:          "skvd",
		Short:        "Serve a schema-aware transactional key-value store over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)

			if err != nil {
				return err
			}

			f.apply(cmd, &cfg)

			if err := cfg.Validate(); err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "skvd.yaml", "path to the YAML config file")
	cmd.Flags().StringVar(&f.addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&f.driver, "storage-driver", "", "kv storage driver")
	cmd.Flags().StringVar(&f.path, "storage-path", "", "path of the storage file")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level")
	cmd.Flags().BoolVar(&f.logJSON, "log-json", false, "log in JSON")

	return cmd
}

// apply overrides cfg with the flags that were set explicitly
func (f flags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("addr") {
		cfg.Server.Addr = f.addr
	}

	if changed("storage-driver") {
		cfg.Storage.Driver = f.driver
	}

	if changed("storage-path") {
		cfg.Storage.Path = f.path
	}

	if changed("log-level") {
		cfg.Logger.Level = f.logLevel
	}

	if changed("log-json") {
		cfg.Logger.JSON = f.logJSON
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := cfg.Logger.Build()

	if err != nil {
		return fmt.Errorf("could not build logger: %w", err)
	}

	defer logger.Sync()

	rootStore, err := openRootStore(cfg.Storage)

	if err != nil {
		logger.Error("could not open storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))

		return err
	}

	defer rootStore.Close()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promRegistry)

	r, err := registry.New(registry.Config{Store: rootStore.Store(metaStore), Logger: logger})

	if err != nil {
		logger.Error("could not open registry", zap.Error(err))

		return err
	}

	coordinator, err := txn.New(txn.Config{
		Registry:            r,
		Store:               mvcc.New(rootStore.Store(dataStore)),
		Logger:              logger,
		Metrics:             m,
		MaxOpenTransactions: cfg.Transactions.MaxOpen,
		TransactionTimeout:  cfg.Transactions.Timeout,
		FinalizedRetention:  cfg.Transactions.FinalizedRetention,
		ReaperInterval:      cfg.Transactions.ReaperInterval,
		Compact:             cfg.Transactions.Compact,
	})

	if err != nil {
		logger.Error("could not start transaction coordinator", zap.Error(err))

		return err
	}

	defer coordinator.Close()

	service := server.New(server.Config{
		Registry:    r,
		Coordinator: coordinator,
		Engine:      query.New(query.Config{Registry: r, Coordinator: coordinator, Logger: logger, PageSize: cfg.Query.PageSize}),
		Logger:      logger,
		Metrics:     m,
	})

	httpServer := skvhttp.New(skvhttp.Config{Service: service, Gatherer: promRegistry, Logger: logger, Addr: cfg.Server.Addr})

	if err := httpServer.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	logger.Info("shutting down")

	return httpServer.Stop()
}

func openRootStore(cfg config.StorageConfig) (kv.RootStore, error) {
	plugin := plugins.Plugin(cfg.Driver)

	if plugin == nil {
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	options := kv.PluginOptions{}

	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("could not create storage directory: %w", err)
		}

		options["path"] = cfg.Path
	}

	return plugin.NewRootStore(options)
}
