// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/internal/config"
	"github.com/xkilldash9x/surfer/internal/observability"
)

type contextKey string

const configKey contextKey = "surfer-config"

var cfgFile string

// NewRootCommand builds the command tree. Each call returns a fresh tree so
// flags never leak between executions.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "surfer",
		Short:         "Surfer drives a browser tab toward a task described in plain language.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "surfer"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "surfer"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting surfer", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().String("store", "", "run store: memory or postgres")
	cmd.PersistentFlags().String("run-key", "", "key of the run record in the store")
	cmd.SetVersionTemplate(`{{printf "surfer version %s\n" .Version}}`)

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newAbortCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newMinifyCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the command tree with ctx. SIGINT is routed to the running
// command: run and resume turn the first one into an abort request, and any
// interrupt a command does not absorb cancels ctx.
func Execute(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)
	defer signal.Stop(signals)
	router := &interruptRouter{}
	go route(ctx, signals, router, cancel)

	root := NewRootCommand()
	err := root.ExecuteContext(withInterruptRouter(ctx, router))
	if err != nil && !errors.Is(err, context.Canceled) {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file and SURFER_ environment variables
// into v, then binds the command's flags over them.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SURFER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return bindFlags(cmd, v)
}

// flagKeys maps command flags onto configuration keys.
var flagKeys = map[string]string{
	"max-steps":   "agent.max_steps",
	"evaluate":    "agent.evaluate_previous",
	"headless":    "browser.headless",
	"store":       "store.type",
	"run-key":     "store.run_key",
	"provider":    "oracle.provider",
	"screenshots": "agent.screenshot_dir",
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// getConfig returns the configuration loaded by the root command.
func getConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
