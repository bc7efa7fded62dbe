package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/brodo/bundle-config/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Build the web target and serve it while watching for changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions(viper.ConfigFileUsed(), internal.TargetWeb, cmd.Flags())
		if err != nil {
			return err
		}
		if _, ok := opts["mode"]; !ok {
			opts["mode"] = "development"
		}
		if cmd.Flags().Changed("port") {
			opts["port"], _ = cmd.Flags().GetInt("port")
		}
		config, err := internal.GetWebConfig(opts)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return internal.Serve(ctx, config)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addOptionFlags(serveCmd.Flags())
	serveCmd.Flags().IntP("port", "p", 8080, "dev server port")
}
