package main

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/4thel00z/chirp/internal"
	"github.com/spf13/cobra"
)

func NewPersonaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Inspect and validate the persona",
	}

	cmd.AddCommand(
		NewPersonaShowCmd(a),
		NewPersonaCheckCmd(),
	)
	return cmd
}

func NewPersonaShowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [prompt]",
		Short: "Show the active persona or one rendered prompt",
		Args:  cobra.MaximumNArgs(1),
		RunE:  makePersonaShowRunner(a),
	}
	return cmd
}

func makePersonaShowRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, scope, err := a.config(cmd)
		if err != nil {
			return err
		}

		store, err := internal.NewPersonaStore(scope.PersonaPath(), cfg.Account.Username)
		if err != nil {
			return err
		}
		persona := store.Current()

		if len(args) == 1 {
			text, err := persona.Render(args[0], nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		}

		source := scope.PersonaPath()
		if _, err := os.Stat(source); os.IsNotExist(err) {
			source = "embedded default"
		}

		prompts := make([]string, 0, len(persona.Prompts))
		for name := range persona.Prompts {
			prompts = append(prompts, name)
		}
		slices.Sort(prompts)

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"name":     persona.Name,
				"username": persona.Username,
				"source":   source,
				"prompts":  prompts,
			})
		}

		fmt.Fprintf(cmd.OutOrStdout(), "name:     %s\n", persona.Name)
		fmt.Fprintf(cmd.OutOrStdout(), "username: @%s\n", persona.Username)
		fmt.Fprintf(cmd.OutOrStdout(), "source:   %s\n", source)
		fmt.Fprintln(cmd.OutOrStdout(), "prompts:")
		for _, name := range prompts {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
		}
		return nil
	}
}

func NewPersonaCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a persona file",
		Args:  cobra.ExactArgs(1),
		RunE:  runPersonaCheck,
	}
}

func runPersonaCheck(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read persona: %w", err)
	}
	persona, err := internal.ParsePersona(data)
	if err != nil {
		return err
	}

	// Only the agent's own prompts are compiled; anything else fails to render.
	var extra []string
	for name := range persona.Prompts {
		if _, err := persona.Render(name, nil); err != nil {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)

	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s)\n", args[0], persona.Name)
	for _, name := range extra {
		fmt.Fprintf(cmd.OutOrStdout(), "  note: prompt %q is not used by the agent\n", name)
	}
	return nil
}
