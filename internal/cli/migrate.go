package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victornm/tquiz/internal/event"
	"github.com/victornm/tquiz/internal/results"
	"github.com/victornm/tquiz/internal/server"
)

func newMigrateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the results archive table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(o)
			if err != nil {
				return err
			}

			if c.Postgres.Addr == "" {
				return fmt.Errorf("postgres not configured")
			}

			db, err := server.ConnectPostgres(cmd.Context(), c)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			eb := event.NewBus()
			defer eb.Stop()

			return results.NewService(results.Config{EventBus: eb, DB: db}).Migrate(cmd.Context())
		},
	}
}
