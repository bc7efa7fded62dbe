package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/brodo/bundle-config/internal"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build [web|node|all]",
	Short: "Bundle one or both targets",
	Long: `Assembles the configuration of the given target and bundles it.
"all" builds the web and node targets at the same time.
For example:

bundle-config build web --mode development
bundle-config build all`,
	ValidArgs: []string{string(internal.TargetWeb), string(internal.TargetNode), "all"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		targets := []internal.Target{internal.Target(args[0])}
		if args[0] == "all" {
			targets = []internal.Target{internal.TargetWeb, internal.TargetNode}
		}

		// Assemble every configuration first so invalid options never start a build.
		configs := make([]*internal.Configuration, len(targets))
		for i, target := range targets {
			opts, err := loadOptions(viper.ConfigFileUsed(), target, cmd.Flags())
			if err != nil {
				return err
			}
			configs[i], err = buildConfig(target, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", target, err)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		eg, egCtx := errgroup.WithContext(ctx)
		for _, config := range configs {
			eg.Go(func() error {
				result, err := internal.Bundle(egCtx, config)
				if err != nil {
					return fmt.Errorf("%s: %w", config.Target, err)
				}
				for name, entry := range result.Entries {
					log.Info().Str("target", string(config.Target)).Str("entry", name).
						Str("script", entry.Script).Str("stylesheet", entry.Stylesheet).Msg("Built entry")
				}
				return nil
			})
		}
		return eg.Wait()
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
	addOptionFlags(buildCmd.Flags())
}
