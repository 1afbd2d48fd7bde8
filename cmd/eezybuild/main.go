package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/eezybuild/eezybuild/pkg/config"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

type rootFlags struct {
	configPath string
	envFile    string
}

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	a.close()
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "eezybuild",
		Short:         "UK Building Regulations assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context(), flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "Path to a .env file (default: .env when present)")

	root.AddCommand(newServeCmd(a), newIngestCmd(a), newChatCmd(a))
	return root
}

func (a *app) init(ctx context.Context, flags *rootFlags) error {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errs[0])
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	a.onClose(log.Sync)

	if cfg.Tracing.Stdout {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)
		a.onClose(func() {
			if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to flush traces", "error", err)
			}
		})
	}
	return nil
}
