package main

import (
	srv "github.com/mohammad-safakhou/deepsearch/internal/server"
	"github.com/mohammad-safakhou/deepsearch/internal/runtime"
	"github.com/spf13/cobra"
)

func serveCMD(load configLoader) *cobra.Command {
	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
				cfg.Server = cfg.Server.Normalize()
			}
			ctx, stop := runtime.SignalContext(cmd.Context())
			defer stop()
			return srv.Run(ctx, cfg)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")

	return serve
}
