package cmd

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/insighto/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := a.cfg.ServerAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		logger := zerolog.Ctx(ctx).Level(zerolog.InfoLevel)
		if debug {
			logger = logger.Level(zerolog.DebugLevel)
		}
		api := server.NewWebAPI(logger, server.Config{Addr: addr, ShutdownTimeout: 10 * time.Second}, a.orch)
		return api.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server_addr)")
}
