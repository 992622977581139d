package ctl

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-layout/pkg/exchange"
)

var errInvalidFiles = errors.New("one or more files failed validation")

type validateResult struct {
	File    string   `json:"file"`
	Valid   bool     `json:"valid"`
	Layout  string   `json:"layout,omitempty"`
	Widgets int      `json:"widgets,omitempty"`
	Issues  []string `json:"issues,omitempty"`
}

func newValidateCmd(app *App) *cobra.Command {
	var noRules bool

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check layout files against the schema and import rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			importer := app.importer(!noRules)
			results := make([]validateResult, 0, len(args))
			failed := false
			for _, path := range args {
				result := validateResult{File: path}
				file, err := readFile(path)
				if err == nil {
					doc, decodeErr := importer.Decode(file)
					err = decodeErr
					result.Layout = doc.ID
					result.Widgets = len(doc.Widgets)
				}
				if err != nil {
					result.Issues = exchange.Issues(err)
					failed = true
				} else {
					result.Valid = true
				}
				results = append(results, result)
			}

			if err := writeJSON(cmd.OutOrStdout(), app, map[string]any{"data": results}); err != nil {
				return err
			}
			if failed {
				return errInvalidFiles
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noRules, "no-rules", false, "Only check the schema, skip expression rules")
	return cmd
}
