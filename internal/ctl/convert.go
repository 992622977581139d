package ctl

import (
	"github.com/spf13/cobra"

	"github.com/goliatone/go-layout/pkg/exchange"
)

func newConvertCmd(app *App) *cobra.Command {
	var (
		format   string
		out      string
		compress bool
		metadata bool
	)

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Re-encode a layout file as json, yaml or csv",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readFile(args[0])
			if err != nil {
				return err
			}
			doc, err := app.importer(true).Decode(file)
			if err != nil {
				return err
			}
			target, err := formatOf(format, out)
			if err != nil {
				return err
			}
			blob, err := exchange.Export(doc, nil, exchange.ExportOptions{
				Format:          target,
				IncludeMetadata: metadata,
				Compress:        compress,
			})
			if err != nil {
				return err
			}
			return writeBlob(cmd, blob, out)
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Output format json|yaml|csv (default: from --out, else json)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (default: stdout)")
	cmd.Flags().BoolVar(&compress, "gzip", false, "Gzip the output")
	cmd.Flags().BoolVar(&metadata, "metadata", true, "Include the export header and full metadata")
	return cmd
}
