package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/shared/money"
)

func cancelCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel ORDER_ID",
		Short: "Cancel a pending order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			note, _ := cmd.Flags().GetString("note")
			return withEnv(cmd, open, func(ctx context.Context, env *Env) error {
				o, err := env.Admin.Cancel(ctx, args[0], actor, note)
				if err != nil {
					return err
				}
				if env.Notifier != nil {
					env.Notifier.OrderChanged(ctx, payments.StatusChange{Order: o, From: orders.StatusPending, Source: "cli"})
				}
				if asJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), o)
				}
				printf(cmd.OutOrStdout(), "order %s %s\n", o.ID, o.Status)
				return nil
			})
		},
	}
	cmd.Flags().String("actor", "cli", "Actor recorded in the order history")
	cmd.Flags().String("note", "", "Reason recorded in the order history")
	return cmd
}

type statusView struct {
	Order    orders.Order       `json:"order"`
	Payments []payments.Payment `json:"payments"`
}

func statusCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status ORDER_ID",
		Short: "Show an order and its payment references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refresh, _ := cmd.Flags().GetBool("refresh")
			return withEnv(cmd, open, func(ctx context.Context, env *Env) error {
				id := args[0]
				if refresh {
					if _, err := env.Reconciler.Refresh(ctx, id); err != nil && !errors.Is(err, payments.ErrNoActiveReference) {
						return err
					}
				}
				o, err := env.Orders.FindByID(ctx, id)
				if err != nil {
					return err
				}
				refs, err := env.Refs.History(ctx, id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asJSON(cmd) {
					return printJSON(out, statusView{Order: o, Payments: refs})
				}
				printf(out, "Order     %s\n", o.ID)
				printf(out, "Status    %s\n", o.Status)
				printf(out, "Method    %s\n", o.PaymentMethod)
				printf(out, "Amount    %s\n", money.FormatBRL(o.AmountCents))
				printf(out, "Buyer     %s <%s>\n", o.Name, o.Email)
				printf(out, "Created   %s\n", o.CreatedAt.Format("2006-01-02 15:04:05"))
				if len(refs) == 0 {
					printf(out, "\nPayments: (none)\n")
					return nil
				}
				printf(out, "\nPayments:\n")
				for _, p := range refs {
					mark := " "
					if p.Active {
						mark = "*"
					}
					printf(out, "  %s %-20s %-12s %s\n", mark, p.ProviderRef, p.BillingType, strings.ToUpper(p.ProviderStatus))
				}
				return nil
			})
		},
	}
	cmd.Flags().Bool("refresh", false, "Reconcile a pending order with the provider first")
	return cmd
}
