package cli

import (
	"context"

	"github.com/spf13/cobra"
)

type settingsView struct {
	IntegrationEnabled bool     `json:"integration_enabled"`
	PixEnabled         bool     `json:"pix_enabled"`
	CardEnabled        bool     `json:"card_enabled"`
	Environment        string   `json:"environment"`
	BaseURL            string   `json:"base_url"`
	APIKey             string   `json:"api_key"`
	Methods            []string `json:"methods"`
}

func settingsCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show the active gateway settings (API key masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, open, func(ctx context.Context, env *Env) error {
				s, err := env.Settings.Load(ctx)
				if err != nil {
					return err
				}
				v := settingsView{
					IntegrationEnabled: s.IntegrationEnabled,
					PixEnabled:         s.PixEnabled,
					CardEnabled:        s.CardEnabled,
					Environment:        string(s.Credential.Environment),
					BaseURL:            s.Credential.BaseURL,
					APIKey:             s.Credential.MaskedKey(),
				}
				for _, m := range s.Methods() {
					v.Methods = append(v.Methods, string(m))
				}

				out := cmd.OutOrStdout()
				if asJSON(cmd) {
					return printJSON(out, v)
				}
				printf(out, "Integration  %t\n", v.IntegrationEnabled)
				printf(out, "PIX          %t\n", v.PixEnabled)
				printf(out, "Card         %t\n", v.CardEnabled)
				printf(out, "Environment  %s\n", v.Environment)
				printf(out, "Base URL     %s\n", v.BaseURL)
				printf(out, "API key      %s\n", v.APIKey)
				return nil
			})
		},
	}
}
