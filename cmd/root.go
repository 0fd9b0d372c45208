package cmd

import (
	"context"

	"example.com/backstage/dairy/config"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	profile string
)

var rootCmd = &cobra.Command{
	Use:   "dairy",
	Short: "Dairy delivery client for agents and sellers",
	Long: `A client for the dairy delivery backend: delivery agents list and
complete their rounds, sellers manage assignments, and the api and worker
commands serve the same operations over HTTP and in the background.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			log.Error().Err(err).Msg("Failed to display help")
		}
	},
}

// Execute executes the root command
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(func() {
		if cfgFile != "" {
			config.SetConfigFile(cfgFile)
		}
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "default", "name of the saved session to use")
}
