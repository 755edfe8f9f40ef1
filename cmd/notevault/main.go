package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/MarcoPoloResearchLab/notevault/internal/clock"
	"github.com/MarcoPoloResearchLab/notevault/internal/config"
	"github.com/MarcoPoloResearchLab/notevault/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "notevault",
		Short:         "Encrypted local-first note store",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the loopback UI bridge",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApplication(cmd.Context(), func(ctx context.Context, app *application) error {
					return runServer(ctx, app, cmd.OutOrStdout())
				})
			},
		},
		&cobra.Command{
			Use:   "export",
			Short: "Write the encrypted export file and print its path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApplication(cmd.Context(), func(ctx context.Context, app *application) error {
					return runExport(ctx, app, cmd.OutOrStdout())
				})
			},
		},
		&cobra.Command{
			Use:   "import <path>",
			Short: "Load encrypted notes from an export file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApplication(cmd.Context(), func(ctx context.Context, app *application) error {
					return runImport(ctx, app, args[0], cmd.OutOrStdout())
				})
			},
		},
		newListCommand(),
		newAddCommand(),
	)
	return rootCmd
}

func newListCommand() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print active notes, pinned first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd.Context(), func(ctx context.Context, app *application) error {
				return runList(ctx, app, query, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "Case-insensitive message filter")
	return cmd
}

func newAddCommand() *cobra.Command {
	var (
		pinned      bool
		deleteAfter time.Duration
	)
	cmd := &cobra.Command{
		Use:   "add <message>",
		Short: "Store a new encrypted note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deleteAfter < 0 {
				return errors.New("--delete-after must not be negative")
			}
			return withApplication(cmd.Context(), func(ctx context.Context, app *application) error {
				return runAdd(ctx, app, args[0], pinned, deleteAfter, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().BoolVar(&pinned, "pinned", false, "Pin the note")
	cmd.Flags().DurationVar(&deleteAfter, "delete-after", 0, "Schedule deletion after this duration (e.g. 72h)")
	return cmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("cache-dir", defaults.GetString("cache.dir"), "Directory for export files")
	cmd.PersistentFlags().String("keystore-type", defaults.GetString("keystore.type"), "Key storage backend (file, memory)")
	cmd.PersistentFlags().String("keystore-dir", defaults.GetString("keystore.dir"), "Directory for the file keystore")
	cmd.PersistentFlags().String("key-variant", defaults.GetString("crypto.key_variant"), "Encryption key variant (exportable, secure)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "UI bridge listen address")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "Origins allowed to call the UI bridge")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Launch token TTL in minutes")
	cmd.PersistentFlags().String("signing-secret", "", "Launch token signing secret (random when empty)")

	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "cache.dir", "cache-dir")
	bindFlag(cmd, "keystore.type", "keystore-type")
	bindFlag(cmd, "keystore.dir", "keystore-dir")
	bindFlag(cmd, "crypto.key_variant", "key-variant")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("notevault")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// withApplication loads configuration, wires the note stack and closes it after fn.
func withApplication(ctx context.Context, fn func(ctx context.Context, app *application) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	app, err := newApplication(appConfig, logger, clock.Real{})
	if err != nil {
		return err
	}
	defer app.Close() //nolint:errcheck

	return fn(ctx, app)
}
