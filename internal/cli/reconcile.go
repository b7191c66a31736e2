package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func reconcileCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check pending PIX orders against the provider once",
		Long: `Runs one reconciliation step for every pending order with an active PIX
reference: local expiration first, then the provider status.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return withEnv(cmd, open, func(ctx context.Context, env *Env) error {
				sum, err := env.Reconciler.ReconcilePending(ctx, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON(cmd) {
					return printJSON(out, sum)
				}
				printf(out, "checked=%d paid=%d declined=%d expired=%d pending=%d failures=%d\n",
					sum.Checked, sum.Paid, sum.Declined, sum.Expired, sum.Pending, sum.Failures)
				if sum.Failures > 0 {
					return fmt.Errorf("%d orders failed to reconcile", sum.Failures)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntP("limit", "n", 100, "Maximum orders to check")
	return cmd
}
