// Package ctl implements layoutctl, an offline tool for checking, upgrading
// and re-encoding exported layout files.
package ctl

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/pkg/exchange"
	"github.com/goliatone/go-layout/pkg/migrate"
)

type App struct {
	Verbose bool
	Pretty  bool

	logger layout.Logger
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "layoutctl",
		Short:        "Validate, migrate and convert dashboard layout files",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Check exported files against the schema and import rules
  layoutctl validate dashboard.json backup.yaml.gz

  # Upgrade a legacy file to the current schema
  layoutctl migrate legacy.yaml --out upgraded.yaml

  # Re-encode as CSV
  layoutctl convert dashboard.json --format csv
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if app.Verbose {
			level = slog.LevelDebug
		}
		handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
		app.logger = layout.NewSlogLogger(slog.New(handler))
		return nil
	}

	cmd.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "Log each processing step to stderr")
	cmd.PersistentFlags().BoolVar(&app.Pretty, "pretty", false, "Pretty-print JSON output")

	cmd.AddCommand(newValidateCmd(app))
	cmd.AddCommand(newMigrateCmd(app))
	cmd.AddCommand(newConvertCmd(app))

	return cmd
}

func (app *App) log() layout.Logger {
	if app.logger == nil {
		return layout.NopLogger()
	}
	return app.logger
}

func (app *App) importer(withRules bool) *exchange.Importer {
	opts := []exchange.ImportOption{
		exchange.WithMigrator(migrate.New(migrate.WithLogger(app.log()))),
		exchange.WithImportLogger(app.log()),
	}
	if !withRules {
		opts = append(opts, exchange.WithRules())
	}
	return exchange.NewImporter(opts...)
}

func readFile(path string) (exchange.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return exchange.File{}, err
	}
	return exchange.File{Name: filepath.Base(path), Data: data}, nil
}

// formatOf picks the explicit format, else the one implied by the file name.
func formatOf(explicit, name string) (exchange.Format, error) {
	if explicit != "" {
		return exchange.ParseFormat(explicit)
	}
	ext := strings.TrimPrefix(filepath.Ext(strings.TrimSuffix(name, ".gz")), ".")
	if format, err := exchange.ParseFormat(ext); err == nil {
		return format, nil
	}
	return exchange.FormatJSON, nil
}

// writeBlob writes blob to out, or to stdout when out is empty or "-".
func writeBlob(cmd *cobra.Command, blob exchange.Blob, out string) error {
	if out == "" || out == "-" {
		_, err := cmd.OutOrStdout().Write(blob.Data)
		return err
	}
	if err := os.WriteFile(out, blob.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	return nil
}

func writeJSON(w io.Writer, app *App, value any) error {
	enc := json.NewEncoder(w)
	if app.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(value)
}
