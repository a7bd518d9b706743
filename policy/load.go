package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the compiled form of one policy file: the rule set and the
// trust anchor store, both in file order.
type Config struct {
	Rules   *RuleSet
	Anchors *AnchorStore
}

// LoadFile parses and compiles a policy file. Relative certificate
// paths inside the file resolve against the file's directory.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, ConfigError{Reason: fmt.Sprintf("failed to read configuration file: %s", path)}
	}
	return LoadBytes(content, filepath.Dir(path))
}

// LoadBytes parses and compiles a policy document. dir is the
// directory relative certificate paths resolve against.
func LoadBytes(src []byte, dir string) (*Config, error) {
	root, err := ParseSection(src)
	if err != nil {
		return nil, err
	}
	return Load(root, dir)
}

// Load compiles a pre-parsed section tree. The root may contain only
// rule and trust-anchor sections; anything else, or an empty tree, is
// a configuration error and nothing is returned.
func Load(root *Section, dir string) (*Config, error) {
	if root == nil || len(root.Entries) == 0 {
		return nil, ConfigError{Reason: "no data in policy"}
	}

	cfg := &Config{
		Rules:   NewRuleSet(),
		Anchors: NewAnchorStore(),
	}

	for _, entry := range root.Entries {
		switch {
		case entry.KeyIs("rule"):
			if err := loadRule(entry.Section, dir, cfg); err != nil {
				return nil, err
			}
		case entry.KeyIs("trust-anchor"):
			cert, err := loadCertSection(entry.Section, "trust-anchor", dir)
			if err != nil {
				return nil, err
			}
			if err := cfg.Anchors.Insert(cert); err != nil {
				return nil, err
			}
		default:
			return nil, ConfigError{Reason: fmt.Sprintf("unrecognized section: %s", entry.Key)}
		}
	}

	return cfg, nil
}

// loadRule compiles one rule section. The strict grammar is: exactly
// one id, exactly one for, zero or more filters, one or more checkers,
// nothing else, in that order.
func loadRule(section *Section, dir string, cfg *Config) error {
	w := walk(section, "rule")

	idSec, err := w.expect("id")
	if err != nil {
		return err
	}
	id := idSec.Val
	if id == "" {
		return ConfigError{Reason: "rule has an empty id"}
	}
	w.setContext("rule " + id)

	forSec, err := w.expect("for")
	if err != nil {
		return err
	}
	var kind RuleKind
	switch strings.ToLower(forSec.Val) {
	case "data":
		kind = DataRule
	case "interest":
		kind = InterestRule
	default:
		return ConfigError{Context: "rule " + id, Reason: fmt.Sprintf("unrecognized <for>: %s", forSec.Val)}
	}

	var filters []Filter
	for w.peekIs("filter") {
		entry, _ := w.next()
		filter, err := CreateFilter(entry.Section)
		if err != nil {
			return wrapRuleErr(err, id)
		}
		filters = append(filters, filter)
	}

	var checkers []Checker
	for w.peekIs("checker") {
		entry, _ := w.next()
		checker, err := CreateChecker(entry.Section, dir)
		if err != nil {
			return wrapRuleErr(err, id)
		}
		checkers = append(checkers, checker)
	}

	if err := w.end(); err != nil {
		return err
	}

	rule, err := NewRule(id, kind, filters, checkers)
	if err != nil {
		return err
	}
	cfg.Rules.Add(rule)
	return nil
}

// wrapRuleErr stamps the rule id onto factory errors that have no
// context of their own.
func wrapRuleErr(err error, id string) error {
	if ce, ok := err.(ConfigError); ok && ce.Context == "" {
		ce.Context = "rule " + id
		return ce
	}
	return err
}
