package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule maps a description keyword to a category. Rules are applied in file
// order; the first match wins.
type Rule struct {
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`
}

// RulesConfig holds the operator-maintained categorization rules
type RulesConfig struct {
	Rules []Rule `yaml:"rules"`

	// Lookup map for fast access
	byPattern map[string]*Rule
}

// LoadRulesConfig loads categorization rules from a YAML file
func LoadRulesConfig(path string) (*RulesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var config RulesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	// Build lookup map; patterns match case-insensitively downstream
	config.byPattern = make(map[string]*Rule, len(config.Rules))
	for i := range config.Rules {
		rule := &config.Rules[i]
		config.byPattern[strings.ToLower(rule.Pattern)] = rule
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate validates the rules configuration
func (c *RulesConfig) Validate() error {
	if len(c.Rules) == 0 {
		return fmt.Errorf("at least one rule must be configured")
	}

	seen := make(map[string]bool)
	for i, rule := range c.Rules {
		if strings.TrimSpace(rule.Pattern) == "" {
			return fmt.Errorf("pattern is required for rule %d", i+1)
		}
		if rule.Category == "" {
			return fmt.Errorf("category is required for pattern %q", rule.Pattern)
		}
		key := strings.ToLower(rule.Pattern)
		if seen[key] {
			return fmt.Errorf("duplicate pattern %q", rule.Pattern)
		}
		seen[key] = true
	}

	return nil
}

// GetRule returns the rule for a given pattern
func (c *RulesConfig) GetRule(pattern string) (*Rule, bool) {
	rule, ok := c.byPattern[strings.ToLower(pattern)]
	return rule, ok
}

// Categories returns the distinct category IDs referenced by the rules
func (c *RulesConfig) Categories() []string {
	seen := make(map[string]bool, len(c.Rules))
	out := make([]string, 0, len(c.Rules))
	for _, rule := range c.Rules {
		if !seen[rule.Category] {
			seen[rule.Category] = true
			out = append(out, rule.Category)
		}
	}
	return out
}
