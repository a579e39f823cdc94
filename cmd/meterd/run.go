package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one metering pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			return a.runOnce(ctx)
		},
	}
}
