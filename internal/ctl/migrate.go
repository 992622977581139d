package ctl

import (
	"fmt"

	"github.com/spf13/cobra"

	layout "github.com/goliatone/go-layout"
	"github.com/goliatone/go-layout/pkg/exchange"
	"github.com/goliatone/go-layout/pkg/migrate"
)

func newMigrateCmd(app *App) *cobra.Command {
	var (
		to     int
		out    string
		format string
	)

	cmd := &cobra.Command{
		Use:   "migrate <file>",
		Short: "Upgrade a layout file to a newer schema version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readFile(args[0])
			if err != nil {
				return err
			}
			payload, detected, err := app.importer(false).Payload(file)
			if err != nil {
				return err
			}

			migrator := migrate.New(migrate.WithLogger(app.log()))
			if to == 0 {
				to = migrator.Latest()
			}
			from := migrate.SchemaVersionOf(payload)
			report, err := migrator.MigratePayload(payload, from, to)
			if err != nil {
				return err
			}
			doc, err := layout.FromMap(payload)
			if err != nil {
				return fmt.Errorf("decode migrated layout: %w", err)
			}
			if issues := exchange.Validate(doc); len(issues) > 0 {
				return &exchange.ImportError{Filename: file.Name, Issues: issues}
			}

			target := detected
			if format != "" {
				if target, err = exchange.ParseFormat(format); err != nil {
					return err
				}
			}
			blob, err := exchange.Export(doc, nil, exchange.ExportOptions{Format: target, IncludeMetadata: true})
			if err != nil {
				return err
			}
			if err := writeBlob(cmd, blob, out); err != nil {
				return err
			}
			app.log().LogLayout(layout.LogEvent{
				Component: "layoutctl",
				Action:    "migrate",
				LayoutID:  doc.ID,
				Fields:    map[string]any{"from": report.From, "to": report.To, "applied": report.Applied},
			})
			if out != "" && out != "-" {
				return writeJSON(cmd.OutOrStdout(), app, map[string]any{"data": report})
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&to, "to", 0, "Target schema version (default: latest)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (default: stdout)")
	cmd.Flags().StringVar(&format, "format", "", "Output format json|yaml|csv (default: input format)")
	return cmd
}
