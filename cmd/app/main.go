package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/retronotes/internal"
	"github.com/starford/retronotes/internal/models"
	pkgconfig "github.com/starford/retronotes/pkg/config"
)

const passwordEnv = "RETRONOTES_EXPORT_PASSWORD"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Debug("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout belongs to the protocol.
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr)); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

func initStore(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.InitStore(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func exportNote(ctx context.Context, cmd *cli.Command) error {
	id, err := models.ParseNoteID(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("--id: %w", err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	password := os.Getenv(passwordEnv)
	if password == "" {
		if password, err = promptPassword("Export password: "); err != nil {
			return err
		}
	}

	path, err := internal.Export(ctx, id, password, cmd.String("out"),
		internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Println(path)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "retronotes",
		Usage:  "Personal note editor backed by a spreadsheet, with encrypted export",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the note tools over MCP stdio",
				Action: mcp,
			},
			{
				Name:   "init",
				Usage:  "Create the workbook if it does not exist",
				Action: initStore,
			},
			{
				Name:  "export",
				Usage: "Write a password-encrypted copy of a note",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "ID of the note to export",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output file (default: note_<title>.secure)",
					},
				},
				Action: exportNote,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
