package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"alertcache/internal/cache"
	"alertcache/internal/config"
	"alertcache/internal/logger"
	"alertcache/internal/processor"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "alertcache",
		Short: "In-memory alert condition cache",
		Long: `alertcache evaluates incoming data points against a cached set of alert
conditions and publishes a match signal to Kafka for every condition that fires.

Data points arrive over HTTP (POST /ingest) or from a Kafka topic. Conditions
are replaced as a whole with PUT /conditions or loaded from a file at startup.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("alertcache version %s\n", version))
	return rootCmd
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	var conditionsPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingest API, Kafka consumer and signal publisher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(v, configPath)
			if err != nil {
				return err
			}
			logger.Init(cfg.LogLevel)

			var opts []processor.Option
			if conditionsPath != "" {
				conds, err := readConditions(conditionsPath)
				if err != nil {
					return err
				}
				opts = append(opts, processor.WithConditions(conds))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, opts...)
		},
	}

	cmd.Flags().String("http-addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringSlice("brokers", nil, "Kafka brokers (overrides config)")
	cmd.Flags().StringVar(&conditionsPath, "conditions", "", "JSON file with the initial condition set")
	v.BindPFlag("http_addr", cmd.Flags().Lookup("http-addr"))
	v.BindPFlag("kafka.brokers", cmd.Flags().Lookup("brokers"))
	return cmd
}

func run(ctx context.Context, cfg *config.Config, opts ...processor.Option) error {
	log := logger.WithComponent("main")
	log.Info().
		Str("version", version).
		Str("http_addr", cfg.HTTPAddr).
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.Topic).
		Msg("starting alertcache")

	if err := processor.New(cfg, opts...).Run(ctx); err != nil {
		log.Error().Err(err).Msg("processor exited")
		return err
	}
	log.Info().Msg("exited")
	return nil
}

// loadConfig layers defaults, the optional config file, ALERTCACHE_* env
// vars and bound flags.
func loadConfig(v *viper.Viper, path string) (*config.Config, error) {
	v.SetEnvPrefix("alertcache")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return config.Load(v)
}

// readConditions accepts either a bare array of conditions or an object with
// a "conditions" field.
func readConditions(path string) ([]cache.Condition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conditions: %w", err)
	}

	var conds []cache.Condition
	if err := json.Unmarshal(data, &conds); err == nil {
		return conds, nil
	}

	var wrapped struct {
		Conditions []cache.Condition `json:"conditions"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode conditions %s: %w", path, err)
	}
	if wrapped.Conditions == nil {
		return nil, errors.New("conditions file has no conditions")
	}
	return wrapped.Conditions, nil
}
