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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rickchristie/flowmap/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	envFiles    []string
	outputFmt   string
	traceFile   string
	metricsAddr string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "flowmap",
	Short: "Map chemical substance descriptions to LCA elementary flows",
	Long: `flowmap extracts the substance and emission category from a free-text
description, expands it to synonyms, looks up its CAS registry number and
returns the best matching elementary flows from the LCA flow database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFiles...); err != nil {
			return err
		}
		return validateOutput(outputFmt)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (.toml, .yaml or .json)")
	flags.StringSliceVar(&envFiles, "env-file", nil, "env files to load before reading FLOWMAP_* variables (default ./.env)")
	flags.StringVarP(&outputFmt, "output", "o", outputYAML, "output format: yaml or json")
	flags.StringVar(&traceFile, "trace", "", "write execution traces as YAML to this file (- for stderr)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&logLevel, "log-level", "", "override log.level")
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	return cfg, nil
}

// serveMetrics exposes gatherer on addr until ctx is done.
func serveMetrics(ctx context.Context, addr, path string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "%smetrics server: %v%s\n", colorRed, err, colorReset)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
