package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/nfrund/chatrelay/internal/app"
	"github.com/nfrund/chatrelay/internal/config"
	"github.com/nfrund/chatrelay/internal/logging"
	"github.com/nfrund/chatrelay/internal/server"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Long: `Run the relay server with configuration from the environment and an
optional .env file in the working directory. The server stops gracefully on
SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			logging.New(cfg.GetLogFormat(), cfg.GetLogLevel())

			s, err := server.New(app.NewInjector(cfg), app.NewModules())
			if err != nil {
				return fmt.Errorf("initialize server: %w", err)
			}
			if code := s.Run(cmd.Context()); code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides ADDR")
	return cmd
}

// loadConfig reads .env when present and decodes the environment.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(afero.NewOsFs())
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}
