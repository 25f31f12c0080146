package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/4thel00z/chirp/internal"
	"github.com/spf13/cobra"
)

const defaultIgnore = `# Authors matching these patterns are never answered, followed or paid.
# One gitignore-style pattern per line; "!name" re-admits a muted author.
#
# *_bot
# spam*
`

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new agent data directory",
		Long:  `Initialize a .chirp directory with a default config, persona and mute list.`,
		RunE:  runInit,
	}

	cmd.Flags().Bool("global", false, "Initialize global scope (~/.chirp)")
	cmd.Flags().String("username", "", "X handle the agent posts as")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	isGlobal, _ := cmd.Flags().GetBool("global")
	username, _ := cmd.Flags().GetString("username")

	var scope internal.Scope
	if isGlobal {
		scope = internal.NewScopeResolver().Global()
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		scope = internal.Scope{
			Type:     internal.ScopeProject,
			Path:     cwd,
			DataPath: filepath.Join(cwd, internal.DataDirName),
		}
	}

	if _, err := os.Stat(scope.DataPath); err == nil {
		return fmt.Errorf("already initialized at %s", scope.DataPath)
	}

	if err := os.MkdirAll(scope.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	cfg := internal.DefaultConfig()
	if username != "" {
		cfg.Account.Username = username
	}
	if err := internal.SaveConfig(scope, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	if err := os.WriteFile(scope.PersonaPath(), internal.DefaultPersonaYAML(), 0644); err != nil {
		return fmt.Errorf("write persona: %w", err)
	}
	if err := os.WriteFile(scope.IgnorePath(), []byte(defaultIgnore), 0644); err != nil {
		return fmt.Errorf("write mute list: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized agent data directory at %s\n", scope.DataPath)
	return nil
}
