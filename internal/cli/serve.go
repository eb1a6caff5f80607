package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tutu-network/trail/internal/daemon"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("memory", false, "Keep the ledger in memory (nothing is persisted)")
	serveCmd.Flags().IntP("port", "p", 0, "Override [api].port")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger API server",
	Long:  `Open the ledger store and serve the HTTP API until interrupted.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if mem, _ := cmd.Flags().GetBool("memory"); mem {
		cfg.Storage.Driver = "memory"
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.API.Port = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Printf("[daemon] close: %v", err)
		}
	}()
	return d.Run(ctx)
}

// withDaemon opens the configured store without serving, for one-shot commands.
func withDaemon(cmd *cobra.Command, fn func(ctx context.Context, d *daemon.Daemon) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Inspecting must not rewrite the stored ledger config.
	cfg.Ledger.Apply = false
	cfg.Events.RedisURL = ""
	if cfg.API.JWTSecret == "" {
		cfg.API.JWTSecret = "offline"
	}

	ctx := cmd.Context()
	d, err := daemon.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(ctx, d)
}
