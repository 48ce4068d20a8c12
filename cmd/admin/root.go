package main

import (
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"cvforge/internal/database"
)

type dbFlags struct {
	host     string
	port     int
	name     string
	user     string
	password string
	sslMode  string
}

func newRootCmd() *cobra.Command {
	flags := &dbFlags{}
	root := &cobra.Command{
		Use:   "cvforge-admin",
		Short: "Operate cvforge accounts, plans and templates",
		Long: `cvforge-admin seeds accounts, applies subscription changes synced from billing,
issues debug access tokens and inspects custom templates.

Database settings fall back to the same environment variables the services read.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.host, "db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
	pf.IntVar(&flags.port, "db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
	pf.StringVar(&flags.name, "db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
	pf.StringVar(&flags.user, "db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
	pf.StringVar(&flags.password, "db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
	pf.StringVar(&flags.sslMode, "db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")

	root.AddCommand(
		newMigrateCmd(flags),
		newAccountCmd(flags),
		newPlanCmd(flags),
		newTokenCmd(),
		newTemplatesCmd(flags),
	)
	return root
}

func (f *dbFlags) open() (*gorm.DB, error) {
	cfg, err := loadDatabaseConfig(f.host, f.port, f.name, f.user, f.password, f.sslMode)
	if err != nil {
		return nil, err
	}
	return database.InitDatabase(cfg, nil)
}

func newMigrateCmd(flags *dbFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := flags.open()
			if err != nil {
				return err
			}
			if err := database.Migrate(db); err != nil {
				return err
			}
			cmd.Println("schema is up to date")
			return nil
		},
	}
}
