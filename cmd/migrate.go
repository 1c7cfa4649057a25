package cmd

import (
	"fmt"
	"package-registry/config"
	"package-registry/orm"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(*cobra.Command, []string) error {
		db, err := orm.InitDB(config.Cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close database")
			}
		}()

		if err := db.Migrate(); err != nil {
			return err
		}

		log.Info().Str("driver", config.Cfg.Database.Driver).Msg("database migrated")

		return nil
	},
}
