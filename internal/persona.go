package internal

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

const (
	PromptShortTerm    = "short_term"
	PromptSignificance = "significance"
	PromptDraft        = "draft"
	PromptRefine       = "refine"
	PromptReply        = "reply"
	PromptConversation = "conversation"
	PromptWallet       = "wallet"
	PromptFollow       = "follow"
)

var requiredPrompts = []string{
	PromptShortTerm, PromptSignificance, PromptDraft, PromptRefine,
	PromptReply, PromptConversation, PromptWallet, PromptFollow,
}

var ErrInvalidPersona = errors.New("invalid persona")

//go:embed persona.yaml
var defaultPersona []byte

func DefaultPersonaYAML() []byte {
	return defaultPersona
}

type Persona struct {
	Name     string            `yaml:"name"`
	Username string            `yaml:"username"`
	Prompts  map[string]string `yaml:"prompts"`

	templates map[string]*template.Template
}

func ParsePersona(data []byte) (*Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPersona, err)
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

func DefaultPersona() *Persona {
	p, err := ParsePersona(defaultPersona)
	if err != nil {
		panic(fmt.Sprintf("embedded persona: %v", err))
	}
	return p
}

// LoadPersona reads a persona file. A missing file yields the embedded default.
func LoadPersona(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultPersona(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read persona: %w", err)
	}
	return ParsePersona(data)
}

func (p *Persona) compile() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidPersona)
	}
	p.templates = make(map[string]*template.Template, len(requiredPrompts))
	for _, name := range requiredPrompts {
		text, ok := p.Prompts[name]
		if !ok || strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: missing prompt %q", ErrInvalidPersona, name)
		}
		t, err := template.New(name).Option("missingkey=zero").Parse(text)
		if err != nil {
			return fmt.Errorf("%w: prompt %q: %w", ErrInvalidPersona, name, err)
		}
		p.templates[name] = t
	}
	return nil
}

// Render executes a prompt template. Name and Username are always available.
func (p *Persona) Render(name string, data map[string]any) (string, error) {
	t, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown prompt %q", ErrInvalidPersona, name)
	}

	vars := map[string]any{
		"Name":     p.Name,
		"Username": p.Username,
	}
	for k, v := range data {
		vars[k] = v
	}

	var b strings.Builder
	if err := t.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// PersonaStore hands out the current persona and swaps it on reload.
type PersonaStore struct {
	mu       sync.RWMutex
	persona  *Persona
	path     string
	username string
}

// NewPersonaStore loads path. username, when set, overrides the persona's
// handle so prompts always name the configured account.
func NewPersonaStore(path, username string) (*PersonaStore, error) {
	s := &PersonaStore{path: path, username: username}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func StaticPersona(p *Persona) *PersonaStore {
	return &PersonaStore{persona: p}
}

func (s *PersonaStore) Path() string {
	return s.path
}

func (s *PersonaStore) Current() *Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persona
}

func (s *PersonaStore) Reload() error {
	p, err := LoadPersona(s.path)
	if err != nil {
		return err
	}
	if s.username != "" {
		p.Username = s.username
	}

	s.mu.Lock()
	s.persona = p
	s.mu.Unlock()
	return nil
}

func (s *PersonaStore) Render(name string, data map[string]any) (string, error) {
	return s.Current().Render(name, data)
}
