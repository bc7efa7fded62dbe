package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfigName = ".bundle-config.yml"

var (
	// Used for flags.
	cfgFile  string
	logLevel string
	// set using ldflags
	version string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bundle-config",
	Short: "Generate and run bundler configurations for web and node targets",
	Long: `bundle-config validates a small set of high level options and turns them into a
bundler configuration for browser ("web") or Node.js ("node") builds.
For example:

bundle-config config web            # print the assembled web configuration
bundle-config build all             # bundle the web and node targets
bundle-config serve                 # run the web dev server
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "options file path (default is $CWD/"+defaultConfigName+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	if version == "" {
		version = "dev"
	}
	rootCmd.Version = version
	cobra.CheckErr(viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")))
	viper.SetDefault("log-level", "info")
	viper.SetEnvPrefix("BUNDLECFG")
	viper.AutomaticEnv()
}

func initConfig() {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	cobra.CheckErr(err)
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).With().Timestamp().Logger()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find cwd directory.
		cwd, err := os.Getwd()
		cobra.CheckErr(err)
		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(defaultConfigName)
	}

	if err := viper.ReadInConfig(); err == nil {
		log.Debug().Str("file", viper.ConfigFileUsed()).Msg("Using options file")
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
		cobra.CheckErr(err)
	}
}
