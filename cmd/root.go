package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/magiconair/properties"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	propertyFiles []string
	propertyPairs []string
	logFormat     string
	logLevel      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bindbench",
	Short: "Drive storage bindings the way a benchmarking harness does",
	Long: `bindbench loads records into a storage backend through the binding
contract, runs an operation mix against it, or checks that the backend honors
the contract. Backends and workloads are configured with properties.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLog(logFormat, logLevel)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&propertyFiles, "property-file", "P", nil, "Load properties from a file (repeatable, later files win)")
	rootCmd.PersistentFlags().StringArrayVarP(&propertyPairs, "property", "p", nil, "Set a property as key=value (repeatable, wins over files)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: 'json' or 'console'")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
}

func setupLog(format, level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)

	if strings.ToLower(format) == "json" {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		log.Logger = log.Output(os.Stdout)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}
	return nil
}

// loadProperties merges the -P files and -p pairs into one property set.
func loadProperties() (*properties.Properties, error) {
	p := properties.NewProperties()
	if len(propertyFiles) > 0 {
		loaded, err := properties.LoadFiles(propertyFiles, properties.UTF8, false)
		if err != nil {
			return nil, fmt.Errorf("failed to load property files: %w", err)
		}
		p = loaded
	}

	for _, pair := range propertyPairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid property %q, want key=value", pair)
		}
		if _, _, err := p.Set(strings.TrimSpace(key), value); err != nil {
			return nil, fmt.Errorf("failed to set property %q: %w", key, err)
		}
	}
	return p, nil
}
