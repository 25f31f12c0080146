package internal

import (
	"bufio"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

const IgnoreFilename = ".chirpignore"

// MuteList matches usernames against gitignore-style patterns. Later
// patterns win, so "!name" re-admits a user excluded by an earlier glob.
type MuteList struct {
	matcher gitignore.Matcher
	empty   bool
}

func NewMuteList(patterns []string) *MuteList {
	var parsed []gitignore.Pattern
	for _, line := range patterns {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parsed = append(parsed, gitignore.ParsePattern(strings.TrimPrefix(line, "@"), nil))
	}
	return &MuteList{matcher: gitignore.NewMatcher(parsed), empty: len(parsed) == 0}
}

// LoadMuteList reads path. A missing file is an empty list.
func LoadMuteList(path string) (*MuteList, error) {
	lines, err := readIgnoreFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return NewMuteList(lines), nil
}

func (m *MuteList) Muted(username string) bool {
	if m == nil || m.empty {
		return false
	}
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
	if name == "" {
		return false
	}
	return m.matcher.Match([]string{name}, false)
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
