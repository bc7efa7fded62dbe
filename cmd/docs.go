package cmd

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

// docsCmd represents the docs command
var docsCmd = &cobra.Command{
	Use:   "docs [dir]",
	Short: "Generate the markdown documentation for bundle-config",
	Long: `Writes one markdown file per command into the given folder, "./docs" by default.
For example:

bundle-config docs ./site/cli`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := filepath.Join(".", "docs")
		if len(args) > 0 {
			dir = args[0]
		}
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}
		log.Info().Str("folder", dir).Msg("Writing documentation")
		return doc.GenMarkdownTree(rootCmd, dir)
	},
}

func init() {
	rootCmd.AddCommand(docsCmd)
}
