package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Seann-Moser/wechat-oauth/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "wechat-oauth",
	Short:         "WeChat OAuth client",
	Long:          "Obtains, stores and refreshes WeChat OAuth credentials and serves the login flow over HTTP",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		slog.Warn("failed to bind verbose flag", "error", err)
	}

	rootCmd.AddCommand(serveCmd, authorizeURLCmd, decryptCmd)
}

// loadConfig reads the configuration with flags bound to the global viper.
func loadConfig() (*config.Config, error) {
	return config.LoadViper(viper.GetViper(), cfgFile)
}

func newLogger(level string) *slog.Logger {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	if viper.GetBool("verbose") {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
