package cmd

import (
	"example.com/backstage/dairy/config"
	"example.com/backstage/dairy/internal/backend/postgres"
	"example.com/backstage/dairy/internal/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the delivery tables in a Postgres database",
	Long: `Create or update the delivery tables for local development against the
postgres driver. Remote procedures and row level security are not created.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(".")
		if err != nil {
			return err
		}
		if cfg.DB.DSN == "" {
			return errors.New("database.dsn is required to run migrations")
		}

		db, err := postgres.Open(cfg.DB)
		if err != nil {
			return err
		}

		log.Info().Msg("Running database migrations")
		if err := models.SetupModels(db); err != nil {
			return errors.Wrap(err, "failed to run migrations")
		}

		log.Info().Msg("Database migrations completed successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
