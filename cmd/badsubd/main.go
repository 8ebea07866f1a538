// Command badsubd is the CLI entry point for BadSUBD: a "serve" subcommand
// exposing the HTTP API, a "sql" subcommand for an interactive console,
// and a "version" subcommand. It uses cobra for subcommand dispatch.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"badsubd/api"
	"badsubd/config"
	"badsubd/engine"
	"badsubd/logger"
	"badsubd/replconsole"
	"badsubd/sqlfrontend"
)

// Version and BuildDate are overridden at build time via:
//
//	go build -ldflags "-X main.Version=x.y.z -X main.BuildDate=2026-07-31"
var (
	Version   = "0.1.0-dev"
	BuildDate = "unknown"
)

type rootFlags struct {
	dataPath   string
	configFile string
	logLevel   string
}

func main() {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "badsubd",
		Short: "BadSUBD: a small fixed-width-row storage engine",
	}
	root.PersistentFlags().StringVar(&flags.dataPath, "data-path", "", "root directory for schemas/tables/indexes (overrides config/env)")
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "path to a TOML configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides config/env)")

	root.AddCommand(serveCmd(flags))
	root.AddCommand(sqlCmd(flags))
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildEngine(ctx context.Context, flags *rootFlags) (*engine.Engine, *config.Config, error) {
	mgr := config.NewManager()
	mgr.OverrideDataPath(flags.dataPath)
	mgr.OverrideLogLevel(flags.logLevel)

	cfg, err := mgr.Initialize(flags.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger.Configure()
	if err := logger.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger.InitLogBridge()

	eng, err := engine.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening engine: %w", err)
	}
	return eng, cfg, nil
}

func serveCmd(flags *rootFlags) *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, cfg, err := buildEngine(ctx, flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			addr := cfg.HTTPAddr
			if httpAddr != "" {
				addr = httpAddr
			}

			server := api.NewServer(eng, cfg.AdminTokenHash)
			httpServer := &http.Server{
				Addr:     addr,
				Handler:  server,
				ErrorLog: logger.SetHTTPServerErrorLog(),
			}
			logger.Info("badsubd %s listening on %s", Version, addr)
			return httpServer.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&httpAddr, "addr", "", "HTTP listen address (overrides config/env)")
	return cmd
}

func sqlCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sql",
		Short: "Start an interactive SQL console",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, _, err := buildEngine(ctx, flags)
			if err != nil {
				return err
			}
			defer eng.Close()

			console := replconsole.New(sqlfrontend.New(eng))
			return console.Run()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("badsubd %s (built %s)\n", Version, BuildDate)
			return nil
		},
	}
}
