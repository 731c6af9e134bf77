package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"obscore/internal/infra/persistence/fixture"
	"obscore/internal/infra/persistence/sqlstore"
)

func seedCmd(flags *globalFlags) *cobra.Command {
	var (
		file   string
		sample bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a YAML dataset into the SQL observation store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (file == "") == !sample {
				return fmt.Errorf("exactly one of --file or --sample is required")
			}
			ds := fixture.Sample()
			if file != "" {
				var err error
				if ds, err = fixture.LoadFile(file); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			a, err := loadApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			store, ok := a.backend.(*sqlstore.Store)
			if !ok {
				return fmt.Errorf("seed needs a sql datastore, configured driver is %q", a.cfg.Datastore.Driver)
			}
			if err := sqlstore.Seed(ctx, store.DB(), store.Dialect(), ds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d offerings, %d series, %d observations\n",
				len(ds.Offerings), len(ds.Series), len(ds.Observations))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML dataset to load")
	cmd.Flags().BoolVar(&sample, "sample", false, "Load the built-in two-offering sample dataset")
	return cmd
}
