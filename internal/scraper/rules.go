package scraper

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Embedded default rule tables
//
//go:embed rules.yaml
var defaultRulesYAML []byte

// Rules holds the keyword tables the parser classifies with.
// The tables are static configuration data; a Rules value is never
// mutated after loading.
type Rules struct {
	// Programs are known loyalty-program names matched case-insensitively
	Programs []string `yaml:"programs"`

	// Denylist phrases mark non-promotional boilerplate articles
	Denylist []string `yaml:"denylist"`

	// QuantityKeywords mark lines likely to carry a miles/points amount
	QuantityKeywords []string `yaml:"quantity_keywords"`

	// OriginAliases normalize abbreviated origins (airport codes, state
	// abbreviations) to city names
	OriginAliases map[string]string `yaml:"origin_aliases"`

	// FallbackProgram is assigned when no known program matches
	FallbackProgram string `yaml:"fallback_program"`

	// FallbackDestination is assigned when no route can be extracted
	FallbackDestination string `yaml:"fallback_destination"`
}

// DefaultRules returns the embedded rule tables
func DefaultRules() Rules {
	rules, err := parseRules(defaultRulesYAML)
	if err != nil {
		// The embedded file ships with the binary; failing to parse it
		// is a build defect, not a runtime condition.
		panic(fmt.Sprintf("embedded rules.yaml is invalid: %v", err))
	}
	return rules
}

// LoadRules loads rule tables from an optional YAML override file.
// An empty path returns the embedded defaults.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}

	rules, err := parseRules(data)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	return rules, nil
}

func parseRules(data []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, err
	}

	if rules.FallbackProgram == "" {
		rules.FallbackProgram = "Unclassified"
	}
	if rules.FallbackDestination == "" {
		rules.FallbackDestination = "General Promotion"
	}

	return rules, nil
}
