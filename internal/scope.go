package internal

import (
	"os"
	"path/filepath"
)

type ScopeType string

const (
	ScopeGlobal  ScopeType = "global"
	ScopeProject ScopeType = "project"
)

const DataDirName = ".chirp"

type Scope struct {
	Type     ScopeType
	Path     string // working directory root
	DataPath string // .chirp directory path
}

func (s Scope) ConfigPath() string {
	return filepath.Join(s.DataPath, "config.yaml")
}

func (s Scope) PersonaPath() string {
	return filepath.Join(s.DataPath, "persona.yaml")
}

func (s Scope) DBPath() string {
	return filepath.Join(s.DataPath, "chirp.db")
}

func (s Scope) IgnorePath() string {
	return filepath.Join(s.DataPath, IgnoreFilename)
}

type ScopeResolver struct {
	homeDir string
}

func NewScopeResolver() *ScopeResolver {
	home, _ := os.UserHomeDir()
	return &ScopeResolver{homeDir: home}
}

func (r *ScopeResolver) Global() Scope {
	return Scope{
		Type:     ScopeGlobal,
		Path:     r.homeDir,
		DataPath: filepath.Join(r.homeDir, DataDirName),
	}
}

func (r *ScopeResolver) Project() (Scope, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return Scope{}, false
	}
	return r.findProjectScope(cwd)
}

func (r *ScopeResolver) findProjectScope(dir string) (Scope, bool) {
	for {
		dataPath := filepath.Join(dir, DataDirName)
		info, err := os.Stat(dataPath)
		if err == nil && info.IsDir() && dataPath != r.Global().DataPath {
			return Scope{Type: ScopeProject, Path: dir, DataPath: dataPath}, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Scope{}, false
		}
		dir = parent
	}
}

// Resolve picks the project scope when one exists unless explicit is
// "global". Any other explicit value is taken as a data directory.
func (r *ScopeResolver) Resolve(explicit string) Scope {
	switch explicit {
	case "global":
		return r.Global()
	case "", "project":
	default:
		abs, err := filepath.Abs(explicit)
		if err == nil {
			return Scope{Type: ScopeProject, Path: filepath.Dir(abs), DataPath: abs}
		}
	}
	if scope, ok := r.Project(); ok {
		return scope
	}
	return r.Global()
}
