package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/demanda/internal"
	pkgconfig "github.com/starford/demanda/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "config/config.yaml"

// loadConfig reads the config file. The default path may be absent, in
// which case built-in defaults apply; an explicit --config must exist.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	path := cmd.String("config")

	load := pkgconfig.LoadOptional[internal.Config]
	if cmd.IsSet("config") {
		load = pkgconfig.Load[internal.Config]
	}
	if err := load(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// action adapts an internal runner to a cli action.
func action(fn func(context.Context, ...internal.Option) error, extra func(*cli.Command, *internal.Config) ([]internal.Option, error)) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithVersion(version),
		}
		if extra != nil {
			more, err := extra(cmd, cfg)
			if err != nil {
				return err
			}
			opts = append(opts, more...)
		}

		if err := fn(ctx, opts...); err != nil {
			return fmt.Errorf("%s: %w", cmd.Name, err)
		}
		return nil
	}
}

func exportFlags(cmd *cli.Command, cfg *internal.Config) ([]internal.Option, error) {
	if out := cmd.String("output"); out != "" {
		cfg.Export.Path = out
		cfg.Export.Format = ""
	}
	if f := cmd.String("format"); f != "" {
		cfg.Export.Format = f
	}
	if err := cfg.Export.Validate(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return nil, nil
}

func reportFlags(cmd *cli.Command, _ *internal.Config) ([]internal.Option, error) {
	return []internal.Option{internal.WithRegion(cmd.String("region"))}, nil
}

func main() {
	cmd := &cli.Command{
		Name:    "demanda",
		Usage:   "Ingest daily CENACE demand reports into one clean hourly dataset",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: defaultConfigPath,
				Value:       defaultConfigPath,
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Sync the input directory into the SQLite index",
				Action: action(internal.RunIngest, nil),
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API and keep the index in step with the input directory",
				Action: action(internal.Run, nil),
			},
			{
				Name:   "export",
				Usage:  "Build the consolidated dataset and write it as CSV or XLSX",
				Action: action(internal.RunExport, exportFlags),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Destination file (overrides export.path)",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "csv or xlsx (defaults to the output extension)",
					},
				},
			},
			{
				Name:   "report",
				Usage:  "Print descriptive statistics of the indexed dataset",
				Action: action(internal.RunReport, reportFlags),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "region",
						Usage: "Restrict to one region code, e.g. SIN",
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: action(internal.RunMCP, nil),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
