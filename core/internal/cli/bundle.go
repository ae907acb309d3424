package cli

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"zipfetch/archive"
	"zipfetch/delivery"
)

// requestFile is the --requests document. A bare YAML/JSON list of
// {url, name} is accepted as well.
type requestFile struct {
	Name  string            `yaml:"name"`
	Files []archive.Request `yaml:"files"`
}

func NewBundleCmd() *cobra.Command {
	var files []string
	var requestsPath string
	var name string
	var output string
	var concurrency int
	var onFailure string
	var onCollision string
	var writeManifest bool
	var strict bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Fetch files and save them as a single zip archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Builder.Concurrency = concurrency
			}
			if cmd.Flags().Changed("on-failure") {
				cfg.Builder.OnFailure = onFailure
			}
			if cmd.Flags().Changed("on-collision") {
				cfg.Builder.OnCollision = onCollision
			}

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
			if name == "" {
				name = cfg.Builder.DefaultName
			}

			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			fetcher, err := cfg.NewFetcher(true)
			if err != nil {
				return err
			}
			opts, err := cfg.BuilderOptions()
			if err != nil {
				return err
			}
			opts.Logger = log

			ctx := commandContext(cmd)
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			sink := delivery.NewDirSink(output)
			res, err := archive.NewBuilder(fetcher, sink, opts).Build(ctx, reqs, name)
			if err != nil {
				return err
			}

			if writeManifest {
				m := delivery.NewManifest(uuid.NewString(), res, time.Now())
				if sha, _, err := delivery.SHA256File(sink.LastPath()); err == nil {
					m.ArchiveSHA256 = sha
				}
				// Sit next to the file the sink actually wrote, not the raw name.
				p := strings.TrimSuffix(sink.LastPath(), ".zip") + ".manifest.json"
				if err := delivery.WriteManifest(p, m); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "archive=%s entries=%d failures=%d\n", sink.LastPath(), len(res.Entries), len(res.Failures))
			for _, f := range res.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed: %v\n", f)
			}
			if strict {
				return res.Err()
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&files, "file", nil, "Source to include as NAME=URL or URL (repeatable; NAME defaults to the URL's base name)")
	cmd.Flags().StringVar(&requestsPath, "requests", "", "YAML/JSON file listing {url, name} entries")
	cmd.Flags().StringVar(&name, "name", "", "Archive base name (default from config, then \"download\")")
	cmd.Flags().StringVar(&output, "output", ".", "Directory the archive is saved to")
	cmd.Flags().IntVar(&concurrency, "concurrency", archive.DefaultConcurrency, "Max concurrent fetches")
	cmd.Flags().StringVar(&onFailure, "on-failure", string(archive.FailPartial), "Fetch failure policy (partial|atomic)")
	cmd.Flags().StringVar(&onCollision, "on-collision", string(archive.CollisionSuffix), "Entry name collision policy (suffix|overwrite|reject)")
	cmd.Flags().BoolVar(&writeManifest, "manifest", false, "Write <name>.manifest.json next to the archive")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero if any source failed, even with a partial archive")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall bundle timeout")
	return cmd
}

// parseFileFlag accepts NAME=URL or a bare URL. A left-hand side that
// looks like a location means there was no name; the URL's base name is used.
func parseFileFlag(v string) archive.Request {
	if i := strings.Index(v, "="); i > 0 && !strings.ContainsAny(v[:i], "/:\\?") {
		return archive.Request{Name: v[:i], URL: v[i+1:]}
	}
	base := v
	if j := strings.IndexAny(base, "?#"); j >= 0 {
		base = base[:j]
	}
	return archive.Request{URL: v, Name: path.Base(base)}
}

func loadRequestFile(p string) (requestFile, error) {
	var rf requestFile
	b, err := os.ReadFile(p)
	if err != nil {
		return rf, err
	}
	if err := yaml.Unmarshal(b, &rf); err == nil {
		return rf, nil
	}
	var list []archive.Request
	if err := yaml.Unmarshal(b, &list); err != nil {
		return rf, fmt.Errorf("parse %s: %w", p, err)
	}
	rf.Files = list
	return rf, nil
}
