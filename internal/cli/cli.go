// Package cli holds the checkoutctl commands. Commands receive their
// services through an Opener so tests can run them against a local database.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
)

var Version = "dev"

type Reconciler interface {
	ReconcilePending(ctx context.Context, limit int) (payments.ReconcileSummary, error)
	Refresh(ctx context.Context, orderID string) (payments.Attempt, error)
}

// Env is what the commands operate on.
type Env struct {
	Reconciler Reconciler
	Orders     *orders.Repo
	Admin      *orders.AdminService
	Refs       *payments.References
	Settings   payments.SettingsLoader
	Notifier   payments.Notifier
}

// Opener builds an Env; the returned func releases it.
type Opener func(ctx context.Context) (*Env, func(), error)

func NewRootCommand(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "checkoutctl",
		Short:         "Operate the checkout service: reconcile payments, inspect and cancel orders",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("json", false, "Output as JSON")

	root.AddCommand(reconcileCmd(open))
	root.AddCommand(cancelCmd(open))
	root.AddCommand(statusCmd(open))
	root.AddCommand(settingsCmd(open))
	return root
}

// withEnv opens the Env for the duration of one command.
func withEnv(cmd *cobra.Command, open Opener, fn func(ctx context.Context, env *Env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, release, err := open(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, env)
}

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
