// Package heuristics implements Branch A: a compiled multi-pattern scan
// over a category-partitioned keyword catalogue plus per-category regex
// families, producing a weighted-max category score.
package heuristics

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
	"gopkg.in/yaml.v3"
)

// Keyword is one catalogue entry scanned by the automaton.
type Keyword struct {
	Text   string `yaml:"text"`
	Weight int    `yaml:"weight"`
}

// RegexRule is one anchored regex of a category family. Families are kept
// small and bounded; an unbounded regex set belongs in the semantic branch.
type RegexRule struct {
	Pattern string `yaml:"pattern"`
	Weight  int    `yaml:"weight"`
}

// Category groups keywords and regexes under one named threat family.
type Category struct {
	Weight            float64     `yaml:"weight"` // contribution to the weighted max
	Cap               int         `yaml:"cap"`
	CriticalThreshold int         `yaml:"critical_threshold"` // 0 = never critical
	Keywords          []Keyword   `yaml:"keywords"`
	Regexes           []RegexRule `yaml:"regexes"`
}

// Whitelist dampens benign-context phrases: each matched phrase subtracts
// Penalty from the final branch score.
type Whitelist struct {
	Penalty int      `yaml:"penalty"`
	Phrases []string `yaml:"phrases"`
}

// catalogueFile is the on-disk YAML shape.
type catalogueFile struct {
	Categories map[string]Category `yaml:"categories"`
	Whitelist  Whitelist           `yaml:"whitelist"`
}

// keywordRef ties an automaton pattern index back to its category and weight.
type keywordRef struct {
	category string
	weight   int
}

// compiledCategory holds the per-category regex family ready to run.
type compiledCategory struct {
	weight            float64
	cap               int
	criticalThreshold int
	regexes           []compiledRegex
}

type compiledRegex struct {
	re     *regexp.Regexp
	weight int
}

// Catalogue is the compiled, immutable pattern catalogue. Built once at
// boot (or on reload) and shared read-only by all requests.
type Catalogue struct {
	automaton  ahocorasick.AhoCorasick
	refs       []keywordRef // indexed by automaton pattern id
	categories map[string]compiledCategory
	whitelist  Whitelist
}

// LoadCatalogue reads and compiles the catalogue YAML. Any parse or compile
// error is returned whole: a partially-loaded catalogue is never used.
func LoadCatalogue(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue %s: %w", path, err)
	}
	return ParseCatalogue(data)
}

// ParseCatalogue compiles catalogue YAML from memory.
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid catalogue YAML: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("catalogue defines no categories")
	}

	cat := &Catalogue{
		categories: make(map[string]compiledCategory, len(file.Categories)),
		whitelist:  file.Whitelist,
	}

	var patterns []string
	for name, c := range file.Categories {
		if c.Cap <= 0 {
			return nil, fmt.Errorf("category %s: cap must be positive", name)
		}
		if c.Weight <= 0 {
			return nil, fmt.Errorf("category %s: weight must be positive", name)
		}
		cc := compiledCategory{
			weight:            c.Weight,
			cap:               c.Cap,
			criticalThreshold: c.CriticalThreshold,
		}
		for _, rule := range c.Regexes {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("category %s: regex %q: %w", name, rule.Pattern, err)
			}
			cc.regexes = append(cc.regexes, compiledRegex{re: re, weight: rule.Weight})
		}
		for _, kw := range c.Keywords {
			if kw.Text == "" {
				return nil, fmt.Errorf("category %s: empty keyword", name)
			}
			patterns = append(patterns, strings.ToLower(kw.Text))
			cat.refs = append(cat.refs, keywordRef{category: name, weight: kw.Weight})
		}
		cat.categories[name] = cc
	}

	// Leftmost-longest matching: when keywords overlap, the longer match
	// wins and shorter overlapping ones are not reported.
	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
		DFA:                  true,
	})
	cat.automaton = builder.Build(patterns)

	return cat, nil
}

// CategoryNames returns the configured category names (diagnostics).
func (c *Catalogue) CategoryNames() []string {
	names := make([]string, 0, len(c.categories))
	for name := range c.categories {
		names = append(names, name)
	}
	return names
}
