package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	client "github.com/bhoriuchi/graphql-ws-client"
	"github.com/bhoriuchi/graphql-ws-client/logger"
	"github.com/bhoriuchi/graphql-ws-client/options"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type flags struct {
	URL         string
	Query       string
	Variables   string
	Config      string
	LogLevel    string
	Reconnect   int
	MetricsAddr string
}

var cliFlags flags

var rootCmd = &cobra.Command{
	Use:   "graphql-ws-client",
	Short: "Subscribe to a GraphQL server over the graphql-ws protocol",
	Long: `Opens a graphql-ws websocket, starts one subscription and prints every
result as a JSON line until interrupted.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&cliFlags.URL, "url", "u", "ws://localhost:3000/graphql", "websocket url of the GraphQL server")
	rootCmd.Flags().StringVarP(&cliFlags.Query, "query", "q", "", "subscription query")
	rootCmd.Flags().StringVar(&cliFlags.Variables, "variables", "", "query variables as a JSON object")
	rootCmd.Flags().StringVarP(&cliFlags.Config, "config", "c", "", "YAML client config file")
	rootCmd.Flags().StringVar(&cliFlags.LogLevel, "log-level", "info", "log level: error|warn|info|debug|trace")
	rootCmd.Flags().IntVar(&cliFlags.Reconnect, "reconnect", -1, "reconnection attempts, overrides the config file")
	rootCmd.Flags().StringVar(&cliFlags.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	rootCmd.MarkFlagRequired("query")
}

func newZapLogger(level string) (*zap.Logger, error) {
	l, err := logger.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(logger.ZapLevel(l))
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func run(cmd *cobra.Command, args []string) error {
	z, err := newZapLogger(cliFlags.LogLevel)
	if err != nil {
		return err
	}
	defer z.Sync()

	opts := []options.Option{}

	if cliFlags.Config != "" {
		cfg, err := options.Load(cliFlags.Config)
		if err != nil {
			return err
		}
		opts = append(opts, options.WithConfig(cfg))
	}

	opts = append(opts, options.WithLogFunc(logger.NewZapLogFunc(z)))

	if cliFlags.Reconnect >= 0 {
		opts = append(opts, options.WithReconnectionAttempts(cliFlags.Reconnect))
	}

	if cliFlags.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, options.WithMetrics(reg))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cliFlags.MetricsAddr, mux); err != nil {
				z.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	params := client.Params{Query: cliFlags.Query}
	if cliFlags.Variables != "" {
		if err := json.Unmarshal([]byte(cliFlags.Variables), &params.Variables); err != nil {
			return fmt.Errorf("parse variables: %w", err)
		}
	}

	c, err := client.New(cliFlags.URL, opts...)
	if err != nil {
		return err
	}

	completed := make(chan struct{})
	enc := json.NewEncoder(cmd.OutOrStdout())

	c.Request(params).SubscribeFunc(
		func(result *client.ExecutionResult) {
			enc.Encode(result)
		},
		func(err error) {
			z.Error("subscription error", zap.Error(err))
		},
		func() {
			close(completed)
		},
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		z.Info("interrupted, closing")
	case <-completed:
		z.Info("subscription completed")
	case <-c.Done():
		return c.Err()
	}

	c.Close()

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		z.Warn("timed out waiting for the connection to close")
	}

	return c.Err()
}
