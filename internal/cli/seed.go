package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/desco95/dvdrental/internal/store"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	DataPath string
	Migrate  bool
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a catalog fixture into the ledger",
		Long: `Load customers, staff, films, categories and inventory from a JSON fixture.

Rows are inserted with their explicit ids in one transaction.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.DataPath == "" {
				return errors.New("--data is required")
			}
			fx, err := store.LoadFixture(opts.DataPath)
			if err != nil {
				return err
			}

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

			if opts.Migrate {
				if err := st.Migrate(cmd.Context()); err != nil {
					return err
				}
			}
			if err := st.Seed(cmd.Context(), fx); err != nil {
				return err
			}
			rt.logger.Info("seed: fixture loaded",
				zap.String("path", opts.DataPath),
				zap.Int("films", len(fx.Films)),
				zap.Int("inventory", len(fx.Inventory)),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.DataPath, "data", "d", "", "path to the JSON fixture")
	cmd.Flags().BoolVar(&opts.Migrate, "migrate", false, "apply migrations before seeding")

	return cmd
}
