package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/foldlink/foldlink/internal/kvstore"
	"github.com/foldlink/foldlink/internal/relay"
	"github.com/foldlink/foldlink/internal/sync"
	"github.com/foldlink/foldlink/internal/utils"
	"github.com/foldlink/foldlink/internal/version"
	"github.com/foldlink/foldlink/internal/wire"
	"github.com/gofrs/flock"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _         = os.UserHomeDir()
	defaultDataDir  = filepath.Join(home, "FoldLink")
	defaultRelayURL = "ws://127.0.0.1:7416/link"
	configFileName  = "config"
)

var rootCmd = &cobra.Command{
	Use:     "foldlink",
	Short:   "FoldLink folder sync daemon",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, err := utils.ResolvePath(viper.GetString("data_dir"))
		if err != nil {
			return fmt.Errorf("invalid data dir: %w", err)
		}
		relayURL := viper.GetString("relay_url")
		encoding := wire.PreferredEncoding(viper.GetString("encoding"))

		if err := utils.EnsureDir(dataDir); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}

		cmd.SilenceUsage = true
		showHeader()

		// one daemon per data dir
		lock := flock.New(filepath.Join(dataDir, "foldlink.lock"))
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("data dir lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another instance is already running on %s", dataDir)
		}
		defer lock.Unlock()

		store, err := kvstore.NewSQLiteStore(filepath.Join(dataDir, "internal", "state.db"))
		if err != nil {
			return fmt.Errorf("open state store: %w", err)
		}
		defer store.Close()

		client := relay.New(relayURL, encoding)
		plugin := sync.NewPlugin(store, client, &logListener{})
		client.OnMessage(plugin.HandlePacket)

		ctx := cmd.Context()
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Close()

		if err := plugin.Start(); err != nil {
			return fmt.Errorf("start sync: %w", err)
		}
		defer plugin.Stop()

		// ask the peer for its registry on boot
		if err := plugin.RequestFolderList(); err != nil {
			slog.Warn("folder list request failed", "error", err)
		}

		<-ctx.Done()
		defer slog.Info("Bye!")
		return nil
	},
}

// logListener surfaces sync callbacks in the daemon log. A real UI would
// hang off the same interface.
type logListener struct{}

func (l *logListener) FolderStatusChanged(folder sync.SyncFolder) {
	slog.Info("folder status", "folder", folder.ID, "path", folder.Path, "status", folder.Status)
}

func (l *logListener) ConflictDetected(conflict sync.FileConflict) {
	slog.Warn("conflict detected", "path", conflict.Path,
		"local", conflict.LocalChecksum, "remote", conflict.RemoteChecksum)
}

func (l *logListener) FileChanged(event sync.FileEvent) {
	slog.Info("file changed", "folder", event.FolderID, "path", event.Path, "action", event.Action)
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("datadir", "d", defaultDataDir, "FoldLink data directory")
	rootCmd.Flags().StringP("relay", "r", defaultRelayURL, "Relay URL of the paired peer")
	rootCmd.Flags().StringP("encoding", "e", "json", "Wire encoding preference (json, msgpack)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "FoldLink config file")
}

func main() {
	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(handler))
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".foldlink"))
		viper.AddConfigPath(filepath.Join(home, ".config/foldlink"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("relay_url", cmd.Flags().Lookup("relay"))
	viper.BindPFlag("encoding", cmd.Flags().Lookup("encoding"))

	viper.SetEnvPrefix("FOLDLINK")
	viper.AutomaticEnv()

	return nil
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).Printf("FoldLink %s\n", version.Short())
}
