package main

import (
	"github.com/spf13/cobra"

	"github.com/skipor/rescache/cmd/rescache/config"
)

var configJSON bool

func init() {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print merged config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := config.Parse(*conf); err != nil {
				return err
			}
			data := config.MarshalYAML(conf)
			if configJSON {
				data = append(config.Marshal(conf), '\n')
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&configJSON, "json", false, "print config in JSON format")
	rootCmd.AddCommand(cmd)
}
