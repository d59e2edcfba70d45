package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/qkgalias/capstone-hub/internal/app"
	"github.com/qkgalias/capstone-hub/internal/config"
	"github.com/qkgalias/capstone-hub/internal/logging"
	"github.com/qkgalias/capstone-hub/internal/material"
	"github.com/qkgalias/capstone-hub/internal/ordering"
)

type cliOptions struct {
	EnvFile string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:          "hub",
		Short:        "Capstone materials dashboard",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Run the HTTP server
  hub serve

  # Apply the schema to DATABASE_URL
  hub migrate

  # Print the board layout for an exported material list
  hub layout --input materials.json --columns 3
`),
	}
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "Optional dotenv file loaded before the environment")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newLayoutCmd())
	return cmd
}

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.EnvFile)
			if err != nil {
				return err
			}
			log := logging.New("capstone-hub", cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, app.Deps{}, log)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(ctx)
		},
	}
}

func newMigrateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the materials schema to DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.EnvFile)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			cfg.Store = config.StorePostgres
			log := logging.New("capstone-hub", cfg.LogLevel, cfg.LogFormat)

			a, err := app.New(cmd.Context(), cfg, app.Deps{}, log)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newLayoutCmd() *cobra.Command {
	var (
		input      string
		categories string
		columns    int
		pretty     bool
	)

	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the grouped, balanced board for a material list",
		Long: strings.TrimSpace(`
Reads materials as JSON, either a bare array or an object with a
"materials" field (the GET /api/materials response), and prints the
column layout the board would render.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := readMaterials(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}
			cats, err := config.LoadCategoriesConfigOrDefault(categories)
			if err != nil {
				return err
			}
			if columns <= 0 {
				columns = cats.MaxColumns
			}

			layout := ordering.NewCatalog(cats.Categories, cats.Fallback).Layout(items, columns)
			enc := json.NewEncoder(cmd.OutOrStdout())
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(layout)
		},
	}
	cmd.Flags().StringVar(&input, "input", "-", "Material JSON file, or - for stdin")
	cmd.Flags().StringVar(&categories, "categories", "config/categories.yaml", "Category catalog file")
	cmd.Flags().IntVar(&columns, "columns", 0, "Maximum columns (default: the catalog's max_columns)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Pretty-print JSON output")
	return cmd
}

func readMaterials(stdin io.Reader, path string) ([]material.Material, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" || path == "" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read materials: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.New("read materials: input is not valid JSON")
	}

	list := gjson.ParseBytes(data)
	if list.IsObject() {
		list = list.Get("materials")
	}
	if !list.IsArray() {
		return nil, errors.New("read materials: expected an array of materials")
	}

	var items []material.Material
	if err := json.Unmarshal([]byte(list.Raw), &items); err != nil {
		return nil, fmt.Errorf("decode materials: %w", err)
	}
	return items, nil
}
