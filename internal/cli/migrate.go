package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the ledger schema migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.logger.Sync() }()

			st, err := openStore(cmd.Context(), rt)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(cmd.Context()); err != nil {
				return err
			}
			rt.logger.Info("migrate: schema up to date", zap.String("db", rt.cfg.DBName))
			return nil
		},
	}
}
