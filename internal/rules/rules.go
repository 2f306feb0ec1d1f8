package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule is the per-source-type configuration driving escalation and auto-close.
// All fields are optional; a zero field means the corresponding trigger is off.
type Rule struct {
	EscalateIfCount int    `yaml:"escalate_if_count"`
	WindowMins      int    `yaml:"window_mins"`
	EscalateTo      string `yaml:"escalate_to"`
	AutoCloseIf     string `yaml:"auto_close_if"`
	ExpiresMins     int    `yaml:"expires_mins"`
}

// RuleSet maps a source type to its rule
type RuleSet map[string]Rule

// Lookup returns the rule for the given source type. A source type with no
// rule is never escalated or auto-closed automatically.
func (r RuleSet) Lookup(sourceType string) (Rule, bool) {
	rule, ok := r[sourceType]
	return rule, ok
}

// Store reads rule definitions from a YAML file on disk. The file is re-read
// on every Load call so edits take effect on the next evaluation without a
// restart; no freshness guarantee stronger than that is provided.
type Store struct {
	path string
}

// NewStore creates a rule store reading from the given path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads and parses the rules file. An unreadable or malformed file is a
// configuration error and fails the evaluation in progress.
func (s *Store) Load() (RuleSet, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", s.path, err)
	}

	var set RuleSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", s.path, err)
	}
	if set == nil {
		set = RuleSet{}
	}
	return set, nil
}
