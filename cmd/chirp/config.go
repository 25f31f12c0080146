package main

import (
	"encoding/json"
	"fmt"

	"github.com/4thel00z/chirp/internal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "********"

func NewConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(NewConfigShowCmd(a))
	return cmd
}

func NewConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show config.yaml merged with environment overrides. Secrets are redacted.`,
		Args:  cobra.NoArgs,
		RunE:  makeConfigShowRunner(a),
	}
}

func makeConfigShowRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, scope, err := a.config(cmd)
		if err != nil {
			return err
		}
		redact(cfg)

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"data_dir": scope.DataPath,
				"scope":    scope.Type,
				"config":   cfg,
			})
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s scope, %s\n", scope.Type, scope.ConfigPath())
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
}

func redact(cfg *internal.Config) {
	for _, s := range []*string{
		&cfg.X.BearerToken,
		&cfg.LLM.Chat.APIKey,
		&cfg.LLM.Completion.APIKey,
		&cfg.LLM.Embeddings.APIKey,
		&cfg.Wallet.PrivateKey,
		&cfg.Store.DSN,
	} {
		if *s != "" {
			*s = redacted
		}
	}
}
