package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/4thel00z/chirp/internal"
)

// Executables named chirp-<name> on PATH act as extra subcommands.
const externalPrefix = "chirp-"

func findExternal(name string) (string, error) {
	binary := externalPrefix + name
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("unknown command %q: %s not found in PATH", name, binary)
	}
	return path, nil
}

// listExternalCommands returns the sorted, de-duplicated external command
// names found on PATH.
func listExternalCommands() []string {
	seen := make(map[string]bool)
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if name := extractExternalName(dir, entry); name != "" {
				seen[name] = true
			}
		}
	}

	commands := make([]string, 0, len(seen))
	for name := range seen {
		commands = append(commands, name)
	}
	slices.Sort(commands)
	return commands
}

func extractExternalName(dir string, entry os.DirEntry) string {
	name := entry.Name()
	if entry.IsDir() || !strings.HasPrefix(name, externalPrefix) {
		return ""
	}

	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil || info.Mode()&0111 == 0 {
		return ""
	}
	return strings.TrimPrefix(name, externalPrefix)
}

func executeExternal(ctx context.Context, name string, args []string, version string) error {
	binaryPath, err := findExternal(name)
	if err != nil {
		return err
	}

	scope := internal.NewScopeResolver().Resolve(os.Getenv("CHIRP_SCOPE"))

	cmd := exec.CommandContext(ctx, binaryPath, args...)
	cmd.Env = buildExternalEnv(version, scope)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

// buildExternalEnv hands plugins the binary, version and resolved data
// directory so they can open the same store.
func buildExternalEnv(version string, scope internal.Scope) []string {
	bin, _ := os.Executable()

	return append(os.Environ(),
		"CHIRP_VERSION="+version,
		"CHIRP_BIN="+bin,
		"CHIRP_DATA_DIR="+scope.DataPath,
		"CHIRP_DB="+scope.DBPath(),
	)
}
