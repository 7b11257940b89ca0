package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/weiawesome/pawfect-live/internal/clientconfig"
	"github.com/weiawesome/pawfect-live/internal/ui"
	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
)

var (
	flagEnvFile string
	flagHub     string
	flagToken   string
	flagName    string
	flagPretty  bool
	flagDebug   bool
)

var rootCmd = &cobra.Command{
	Use:   "live-client",
	Short: "Headless client for Pawfect live rooms",
	Long: `live-client joins Pawfect live rooms from the terminal. It can watch a
broadcast, broadcast from IVF/Ogg files, and check whether a room is live.

While in a room, type a line to chat, "/react [emoji]" to send a reaction,
"/reconnect" to retry after an error and "/quit" to leave.`,
}

// Execute runs the root command. Errors are printed once, styled.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

// loadConfig reads the client configuration and applies the persistent
// flags on top of it.
func loadConfig() (*clientconfig.Config, error) {
	cfg, err := clientconfig.Load(flagEnvFile)
	if err != nil {
		return nil, err
	}

	if flagHub != "" {
		api, err := clientconfig.APIURLFromHub(flagHub)
		if err != nil {
			return nil, err
		}
		cfg.Hub.URL = flagHub
		cfg.Hub.APIURL = api
	}
	if flagToken != "" {
		cfg.Hub.Token = flagToken
	}
	if flagName != "" {
		cfg.Identity.DisplayName = flagName
	}
	if rootCmd.PersistentFlags().Changed("pretty") {
		cfg.Log.Pretty = flagPretty
	}
	if flagDebug {
		cfg.Log.Level = "debug"
	}

	cfg.Log.ServiceName = "live-client"
	cfg.Log.Output = os.Stderr
	pkglog.Init(cfg.Log)

	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagEnvFile, "env", "e", "", "Env file to load (default .env when present)")
	rootCmd.PersistentFlags().StringVar(&flagHub, "hub", "", "Hub WebSocket URL, e.g. ws://localhost:8084/ws")
	rootCmd.PersistentFlags().StringVarP(&flagToken, "token", "t", "", "Identity token issued by the platform")
	rootCmd.PersistentFlags().StringVarP(&flagName, "name", "n", "", "Display name")
	rootCmd.PersistentFlags().BoolVar(&flagPretty, "pretty", true, "Human readable logs")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Debug logging")
}
