package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zipfetch/core/internal/serverapp"
)

func NewServerCmd() *cobra.Command {
	var port int
	var tlsEnabled bool
	var tlsCert string
	var tlsKey string
	var dataDir string
	var psk string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve archive downloads over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.Server.DataDir = dataDir
			}
			if cmd.Flags().Changed("psk") {
				cfg.Server.PSK = psk
			}
			if cfg.Server.DataDir == "" {
				cfg.Server.DataDir = "./zipfetch-data"
			}

			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			fetcher, err := cfg.NewFetcher(false)
			if err != nil {
				return err
			}
			opts, err := cfg.BuilderOptions()
			if err != nil {
				return err
			}

			srv := serverapp.New(serverapp.Config{
				DataDir:     cfg.Server.DataDir,
				PSK:         cfg.Server.PSK,
				DefaultName: cfg.Builder.DefaultName,
				Builder:     opts,
				Fetcher:     fetcher,
				Logger:      log,
			})
			if err := srv.LoadFromDisk(); err != nil {
				return err
			}

			httpSrv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			if tlsEnabled {
				if tlsCert == "" || tlsKey == "" {
					return fmt.Errorf("--tls-cert and --tls-key are required when --tls-enabled=true")
				}
				log.Info("server listening", zap.String("addr", "https://0.0.0.0"+httpSrv.Addr), zap.String("data_dir", cfg.Server.DataDir))
				return httpSrv.ListenAndServeTLS(tlsCert, tlsKey)
			}

			log.Info("server listening", zap.String("addr", "http://0.0.0.0"+httpSrv.Addr), zap.String("data_dir", cfg.Server.DataDir))
			return httpSrv.ListenAndServe()
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "Server port")
	cmd.Flags().BoolVar(&tlsEnabled, "tls-enabled", false, "Enable TLS")
	cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate (PEM)")
	cmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS private key (PEM)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./zipfetch-data", "Directory for persisted archive manifests")
	cmd.Flags().StringVar(&psk, "psk", "", "Pre-shared key required on every /v1 request (X-PSK)")
	return cmd
}
