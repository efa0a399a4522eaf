package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frederic-klein/fml/internal/config"
)

var (
	cfgFile     string
	gameVersion string

	cfg    config.Config
	logger *log.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, styles.err.Render("error: ")+err.Error())
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "fml",
		Short:         "Factorio Mod Loader - installs portal mods on a headless server",
		Long:          "FML resolves Factorio mod dependencies against the mod portal, downloads and verifies the archives, and keeps mod-list.json in sync.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initConfig := config.Init
			if cmd.Name() == "init" {
				// init creates the file --config points at
				initConfig = config.InitForWrite
			}
			if err := initConfig(cfgFile); err != nil {
				return err
			}
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			logger = newLogger(cfg.Verbose)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ~/.config/fml/config.yml)")
	flags.BoolP("verbose", "v", false, "Verbose output")
	flags.StringP("mods-dir", "d", "", "Factorio mods directory")
	flags.String("server-settings", "", "server-settings.json holding portal credentials")
	flags.String("portal-url", "", "Mod portal base URL")
	flags.StringVar(&gameVersion, "game-version", "", "Game version (major.minor), detected from the install when empty")
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("mods_dir_path", flags.Lookup("mods-dir"))
	_ = viper.BindPFlag("server_config_path", flags.Lookup("server-settings"))
	_ = viper.BindPFlag("portal_url", flags.Lookup("portal-url"))

	rootCmd.AddCommand(
		newInitCmd(),
		newInstallCmd(),
		newSearchCmd(),
		newListCmd(),
		newRemoveCmd(),
		newEnableCmd(true),
		newEnableCmd(false),
		newWatchCmd(),
	)
	return rootCmd
}

func newLogger(verbose bool) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "fml",
	})
	if verbose {
		l.SetLevel(log.DebugLevel)
	}
	return l
}
