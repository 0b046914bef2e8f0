package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "camhub",
		Short: "camhub - PTZ camera control and streaming broker",
		Long: `camhub brokers a small fleet of pan-tilt-zoom network cameras among
multiple remote operators: exactly one operator controls a camera at a
time, and the number of distinct cameras being decoded at once is capped.

Features:
  • Exclusive per-camera control locks over a persistent control protocol
  • TCP and WebSocket control transports with identical framing
  • Capped MJPEG streaming with free extra viewers per open camera
  • PTZ/zoom/focus relay to digest-authenticated camera endpoints
  • Snapshot capture to disk
  • REST API for inventory and live status`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/camhub/config.yaml)")
	rootCmd.PersistentFlags().Int("http-port", 0, "HTTP listen port (default is 8080)")
	rootCmd.PersistentFlags().Int("control-port", 0, "control listener port (default is 9000)")
	rootCmd.PersistentFlags().Int("max-streams", 0, "cap on distinct concurrently streamed cameras (default is 4)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("http_port", rootCmd.PersistentFlags().Lookup("http-port"))
	viper.BindPFlag("control_port", rootCmd.PersistentFlags().Lookup("control-port"))
	viper.BindPFlag("max_streams", rootCmd.PersistentFlags().Lookup("max-streams"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
