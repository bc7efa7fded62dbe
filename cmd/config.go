package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/brodo/bundle-config/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configFormat string

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config [web|node]",
	Short: "Print the configuration assembled from the options file",
	Long: `Validates the options of the given target and prints the resulting configuration.
For example:

bundle-config config web --format json
bundle-config config node --mode development`,
	ValidArgs: []string{string(internal.TargetWeb), string(internal.TargetNode)},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := internal.Target(args[0])
		opts, err := loadOptions(viper.ConfigFileUsed(), target, cmd.Flags())
		if err != nil {
			return err
		}
		config, err := buildConfig(target, opts)
		if err != nil {
			return err
		}
		return printConfig(cmd.OutOrStdout(), config, configFormat)
	},
}

func printConfig(w io.Writer, config *internal.Configuration, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(config)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(config); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format '%s', expected yaml or json", format)
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().StringVarP(&configFormat, "format", "o", "yaml", "output format (yaml or json)")
	addOptionFlags(configCmd.Flags())
}
