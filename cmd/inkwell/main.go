// Package main provides the inkwell CLI: a thin shell over the offline-first
// note sync engine for inspecting the cache, queueing edits, and draining
// the mutation queue.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	_ "modernc.org/sqlite"

	"github.com/nvoitko/inkwell/internal/api"
	"github.com/nvoitko/inkwell/internal/config"
	"github.com/nvoitko/inkwell/internal/encryption"
	"github.com/nvoitko/inkwell/internal/keystore"
	"github.com/nvoitko/inkwell/internal/logging"
	"github.com/nvoitko/inkwell/internal/netx"
	"github.com/nvoitko/inkwell/internal/repositories"
	"github.com/nvoitko/inkwell/internal/services"
)

var (
	// configFile is set by the --config flag.
	configFile string

	// app holds the wired engine, initialized on startup.
	app *engine
)

// engine bundles the services a command may need.
type engine struct {
	cfg     *config.Config
	repos   *repositories.Repositories
	notes   *services.NotesService
	folders *services.FoldersService
	sync    *services.SyncProcessor
	keys    *keystore.KeySource
	userID  string
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "Inkwell is an offline-first encrypted notes client",
	Long: `Inkwell keeps an encrypted local cache of your notes, queues edits
made offline, and reconciles them with the server when connectivity
returns.`,
	PersistentPreRunE: initEngine,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app != nil && app.repos != nil {
			return app.repos.DB.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (JSON)")
	rootCmd.PersistentFlags().String("user", "", "user id (defaults to $INKWELL_USER)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}

func initEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	ctx := context.Background()
	repos, err := repositories.InitDatabase(ctx, cfg.DBPath, log)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}

	keys := keystore.NewKeySource(keystore.NewFileStore(cfg.KeystorePath))
	enc := encryption.NewAdapter(keys, log)
	apic := api.NewHTTPClient(cfg.APIBaseURL)
	net := netx.NewHTTPProbe(cfg.APIBaseURL+"/health", cfg.OnlineCheckInterval)

	userID, _ := cmd.Flags().GetString("user")
	if userID == "" {
		userID = os.Getenv("INKWELL_USER")
	}

	app = &engine{
		cfg:     cfg,
		repos:   repos,
		notes:   services.NewNotesService(repos, apic, enc, net, log, cfg.CacheTTLMinutes, cfg.StoreDecrypted),
		folders: services.NewFoldersService(repos, apic, net, log, cfg.CacheTTLMinutes),
		sync:    services.NewSyncProcessor(repos, apic, net, log, cfg.SyncCooldown),
		keys:    keys,
		userID:  userID,
	}
	return nil
}
