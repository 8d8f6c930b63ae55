package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"halcyon-cms/pkg/config"
	"halcyon-cms/pkg/ctxlog"
	"halcyon-cms/pkg/services"
)

var rootCmd = &cobra.Command{
	Use:          "halcyon",
	Short:        "Flat-file template store",
	Long:         "Halcyon keeps site templates as sectioned text files and serves them over a JSON API.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default .halcyon.yaml)")
	rootCmd.PersistentFlags().String("theme", "", "theme to use instead of the default one")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if _, err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}

	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if cfgFile := config.ConfigFile(); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".halcyon")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}
	config.Setup(viper.GetViper())

	// No config file is fine; defaults and the environment apply.
	_ = viper.ReadInConfig()
}

// boot loads the configuration and opens the store. The returned context
// carries the logger.
func boot(cmd *cobra.Command) (context.Context, *services.App, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	logger := services.NewLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	if f := viper.ConfigFileUsed(); f != "" {
		logger.Debug("config file loaded", "file", f)
	}

	ctx := ctxlog.WithLogger(cmd.Context(), logger)
	app, err := services.Boot(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return ctx, app, nil
}

func themeFlag(cmd *cobra.Command) string {
	theme, _ := cmd.Flags().GetString("theme")
	return theme
}
