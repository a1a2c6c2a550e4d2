package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amonks/timekeep/internal/paths"
	"github.com/amonks/timekeep/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference tracking backend",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var (
	serveAddr    string
	serveDataDir string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: 127.0.0.1:<server.port>)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Ledger directory (default: ~/.local/share/timekeep)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := serveAddr
	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", cfg.ServerPort())
	}
	dataDir := serveDataDir
	if dataDir == "" {
		dataDir = cfg.Server.DataDir
	}
	if dataDir == "" {
		dataDir, err = paths.DefaultDataDir()
		if err != nil {
			return err
		}
	}
	srv, err := server.NewServer(server.ServerOptions{DataDir: dataDir})
	if err != nil {
		return err
	}
	return srv.Serve(addr)
}
