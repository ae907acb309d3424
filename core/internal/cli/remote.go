package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"zipfetch/archive"
	"zipfetch/core/internal/client"
	"zipfetch/delivery"
)

func NewRemoteCmd() *cobra.Command {
	var serverURL string
	var psk string
	var insecure bool
	var files []string
	var requestsPath string
	var name string
	var output string
	var writeManifest bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Have a zipfetch server build the archive and save the download",
		RunE: func(cmd *cobra.Command, args []string) error {
			var reqs []archive.Request
			if requestsPath != "" {
				rf, err := loadRequestFile(requestsPath)
				if err != nil {
					return err
				}
				reqs = append(reqs, rf.Files...)
				if name == "" {
					name = rf.Name
				}
			}
			for _, f := range files {
				reqs = append(reqs, parseFileFlag(f))
			}

			c, err := client.New(client.Config{ServerURL: serverURL, PSK: psk, InsecureTLS: insecure, Timeout: timeout})
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			d, err := c.CreateArchive(ctx, name, reqs)
			if err != nil {
				return err
			}

			sink := delivery.NewDirSink(output)
			if err := sink.Deliver(ctx, d.Blob, d.Filename); err != nil {
				return err
			}
			if writeManifest && d.ID != "" {
				m, err := c.Manifest(ctx, d.ID)
				if err != nil {
					return err
				}
				p := filepath.Join(output, strings.TrimSuffix(filepath.Base(d.Filename), ".zip")+".manifest.json")
				if err := delivery.WriteManifest(p, m); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archive=%s id=%s entries=%d failures=%d\n", sink.LastPath(), d.ID, d.Entries, d.Failures)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "zipfetch server base URL")
	cmd.Flags().StringVar(&psk, "psk", "", "Pre-shared key (X-PSK)")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification (lab mode)")
	cmd.Flags().StringArrayVar(&files, "file", nil, "Source to include as NAME=URL or URL (repeatable)")
	cmd.Flags().StringVar(&requestsPath, "requests", "", "YAML/JSON file listing {url, name} entries")
	cmd.Flags().StringVar(&name, "name", "", "Archive base name (server default when empty)")
	cmd.Flags().StringVar(&output, "output", ".", "Directory the archive is saved to")
	cmd.Flags().BoolVar(&writeManifest, "manifest", false, "Fetch the server manifest and save it next to the archive")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Request timeout")
	return cmd
}
