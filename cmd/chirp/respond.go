package main

import (
	"encoding/json"
	"fmt"

	"github.com/4thel00z/chirp/internal"
	"github.com/spf13/cobra"
)

func NewRespondCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "respond",
		Short: "Answer unseen mentions and priority authors",
		Long:  `Run only the responder: unseen mentions first, then the latest posts of priority authors.`,
		Args:  cobra.NoArgs,
		RunE:  makeRespondRunner(a),
	}
}

func makeRespondRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ag, release, err := a.agent(cmd, internal.AgentOptions{})
		if err != nil {
			return err
		}
		defer release()

		n, err := ag.Respond(cmd.Context())

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			out := map[string]any{"replies": n}
			if err != nil {
				out["error"] = err.Error()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(out); encErr != nil {
				return encErr
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Sent %d replies\n", n)
		if err != nil {
			return fmt.Errorf("respond: %w", err)
		}
		return nil
	}
}
