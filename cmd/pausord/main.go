package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/viant/pausor"
	"github.com/viant/pausor/gateway"
	"github.com/viant/pausor/tracing"
)

const version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:     "pausord",
		Short:   "approval pause/resume daemon",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(cmd)
			config, err := loadConfig(cmd, configFile)
			if err != nil {
				return err
			}
			if traceFile, _ := cmd.Flags().GetString("trace-file"); traceFile != "" {
				if err := tracing.Init("pausord", version, traceFile); err != nil {
					return err
				}
			}
			return run(cmd.Context(), config, logger)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (yaml)")
	flags.String("addr", "", "listen address (overrides config)")
	flags.String("log-level", "info", "log level: debug|info|warn|error")
	flags.String("log-file", "", "log file with rotation; stdout when empty")
	flags.String("trace-file", "", "write otel spans to file")
	return cmd
}

func loadConfig(cmd *cobra.Command, configFile string) (*pausor.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAUSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %v: %w", configFile, err)
		}
	}
	config := pausor.DefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		config.HTTP.Addr = addr
	}
	return config, config.Validate()
}

func setupLogger(cmd *cobra.Command) *slog.Logger {
	levelName, _ := cmd.Flags().GetString("log-level")
	level := slog.LevelInfo
	switch strings.ToLower(levelName) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	var writer = os.Stdout
	options := &slog.HandlerOptions{Level: level}
	if logFile, _ := cmd.Flags().GetString("log-file"); logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		logger := slog.New(slog.NewJSONHandler(rotating, options))
		slog.SetDefault(logger)
		return logger
	}
	logger := slog.New(slog.NewJSONHandler(writer, options))
	slog.SetDefault(logger)
	return logger
}

func run(ctx context.Context, config *pausor.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, err := pausor.NewFromConfig(ctx, config)
	if err != nil {
		return err
	}
	service.Start(ctx)
	defer service.Shutdown()

	api := gateway.New(service.Approvals(), service.Codec(), service.Checkpoints(), service.Broadcaster())
	server := &http.Server{
		Addr:              config.HTTP.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", config.HTTP.Addr, "store", config.Store.Driver, "state", config.State.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
