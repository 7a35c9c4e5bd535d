package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRulesConfig(t *testing.T) {
	path := writeRulesFile(t, `
rules:
  - pattern: "rent payment"
    category: rent
  - pattern: "aws"
    category: cloud
  - pattern: "home depot"
    category: repairs
`)

	cfg, err := LoadRulesConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 3)

	// File order is preserved: first match wins downstream
	assert.Equal(t, "rent payment", cfg.Rules[0].Pattern)
	assert.Equal(t, "rent", cfg.Rules[0].Category)

	rule, ok := cfg.GetRule("AWS")
	require.True(t, ok)
	assert.Equal(t, "cloud", rule.Category)

	assert.ElementsMatch(t, []string{"rent", "cloud", "repairs"}, cfg.Categories())
}

func TestLoadRulesConfigRejectsDuplicatePattern(t *testing.T) {
	path := writeRulesFile(t, `
rules:
  - pattern: "aws"
    category: cloud
  - pattern: "AWS"
    category: utilities
`)

	_, err := LoadRulesConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate pattern")
}

func TestLoadRulesConfigRejectsEmptyFields(t *testing.T) {
	path := writeRulesFile(t, `
rules:
  - pattern: ""
    category: rent
`)
	_, err := LoadRulesConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pattern is required")

	path = writeRulesFile(t, `
rules:
  - pattern: "aws"
    category: ""
`)
	_, err = LoadRulesConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category is required")
}

func TestLoadRulesConfigRejectsEmptySet(t *testing.T) {
	path := writeRulesFile(t, "rules: []\n")
	_, err := LoadRulesConfig(path)
	require.Error(t, err)
}

func TestLoadRulesConfigMissingFile(t *testing.T) {
	_, err := LoadRulesConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
