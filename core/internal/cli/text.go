package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"zipfetch/archive"
	"zipfetch/delivery"
)

func NewTextCmd() *cobra.Command {
	var content string
	var fromStdin bool
	var name string
	var output string

	cmd := &cobra.Command{
		Use:   "text",
		Short: "Save text content as a downloadable .txt file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if fromStdin {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				content = string(b)
			}
			if name == "" {
				name = cfg.Builder.DefaultName
			}

			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			sink := delivery.NewDirSink(output)
			b := archive.NewBuilder(nil, sink, archive.Options{Logger: log})
			if _, err := b.DeliverText(commandContext(cmd), content, name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "text=%s\n", sink.LastPath())
			return nil
		},
	}

	cmd.Flags().StringVar(&content, "content", "", "Text to save")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read content from stdin instead of --content")
	cmd.Flags().StringVar(&name, "name", "", "File base name (default from config, then \"download\")")
	cmd.Flags().StringVar(&output, "output", ".", "Directory the file is saved to")
	return cmd
}
