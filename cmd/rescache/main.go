package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skipor/rescache/cmd/rescache/config"
	"github.com/skipor/rescache/internal/util"
)

var (
	configPath string
	// flagConf values override config file values.
	flagConf config.Config
)

var rootCmd = &cobra.Command{
	Use:   "rescache",
	Short: "Resource memory cache shared by document and workers",
	Long: `rescache runs document with resource memory cache and page workers, that fetch
resources through it, and reports cache behaviour.

Config values merge rules:
1) config file value overrides default
2) command line value overrides any`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to JSON or YAML config")
	flags.StringVar(&flagConf.LogDestination, "log-destination", "", "log destination: stderr, stdout or file path")
	flags.StringVar(&flagConf.LogLevel, "log-level", "", "log level: debug, info, warn, error, fatal")
}

// loadConfig reads config file if any and returns merged config.
func loadConfig() (*config.Config, error) {
	conf := config.Default()
	if configPath != "" {
		if err := config.Load(configPath, conf); err != nil {
			return nil, err
		}
	}
	if err := config.Merge(conf, &flagConf); err != nil {
		return nil, err
	}
	return conf, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", util.Message(err))
		os.Exit(1)
	}
}
