package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"modelbridge/internal/backend"
	"modelbridge/internal/config"
	"modelbridge/internal/samples"
	"modelbridge/internal/serve/chat"
)

var servePort int

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (defaults to PORT or 7860)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket chat server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		port := cfg.Port
		if servePort != 0 {
			port = servePort
		}

		dispatcher := buildDispatcher(cfg)
		questions := samples.Load(cfg.SamplesFile)
		manager := chat.NewSessionManager(dispatcher, backend.ID(cfg.DefaultBackend), questions, cfg.ServeToken)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go manager.StartGC(ctx)

		addr := fmt.Sprintf(":%d", port)
		slog.Info("starting chat server", "addr", addr, "default_backend", cfg.DefaultBackend)
		return http.ListenAndServe(addr, manager.HTTPHandler())
	},
}
