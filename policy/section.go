package policy

import (
	"fmt"
	"strings"

	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/parser"
)

// Section is an ordered tree of named configuration entries, the shape
// a parsed policy file takes before it is compiled into rules and
// trust anchors. Duplicate keys are legal and entry order is the file
// order; key comparisons are case-insensitive.
type Section struct {
	// Val is the scalar value of a leaf entry.
	Val string
	// Entries are the child sections in file order.
	Entries []Entry
}

// Entry is one named child of a Section.
type Entry struct {
	Key     string
	Section *Section
}

// KeyIs reports whether the entry key matches, ignoring case.
func (e Entry) KeyIs(key string) bool {
	return strings.EqualFold(e.Key, key)
}

// ParseSection parses a YAML policy document into a Section tree.
// Unlike a plain YAML decode, duplicate mapping keys are kept in
// order, so a file may carry any number of rule and trust-anchor
// sections.
func ParseSection(src []byte) (*Section, error) {
	file, err := parser.ParseBytes(src, 0, parser.AllowDuplicateMapKey())
	if err != nil {
		return nil, ConfigError{Reason: fmt.Sprintf("failed to parse policy: %v", err)}
	}
	if len(file.Docs) == 0 || file.Docs[0].Body == nil {
		return &Section{}, nil
	}
	return sectionFromNode(file.Docs[0].Body)
}

func sectionFromNode(node ast.Node) (*Section, error) {
	switch n := node.(type) {
	case *ast.MappingNode:
		s := &Section{}
		for _, value := range n.Values {
			if err := s.appendPair(value); err != nil {
				return nil, err
			}
		}
		return s, nil
	case *ast.MappingValueNode:
		s := &Section{}
		if err := s.appendPair(n); err != nil {
			return nil, err
		}
		return s, nil
	case *ast.SequenceNode:
		return nil, ConfigError{Reason: "unexpected list in policy"}
	default:
		if scalar, ok := node.(ast.ScalarNode); ok {
			return &Section{Val: scalarString(scalar)}, nil
		}
		return nil, ConfigError{Reason: fmt.Sprintf("unexpected node in policy: %s", node.Type())}
	}
}

func (s *Section) appendPair(pair *ast.MappingValueNode) error {
	key, ok := pair.Key.(ast.ScalarNode)
	if !ok {
		return ConfigError{Reason: "section key is not a scalar"}
	}

	child := &Section{}
	if pair.Value != nil {
		var err error
		child, err = sectionFromNode(pair.Value)
		if err != nil {
			return err
		}
	}

	s.Entries = append(s.Entries, Entry{
		Key:     scalarString(key),
		Section: child,
	})
	return nil
}

func scalarString(node ast.ScalarNode) string {
	v := node.GetValue()
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// walker consumes the entries of a section in order, enforcing the
// strict property grammar of the policy file.
type walker struct {
	entries []Entry
	pos     int
	ctx     string
}

func walk(s *Section, ctx string) *walker {
	return &walker{entries: s.Entries, ctx: ctx}
}

// setContext names the section in subsequent errors, usually with the
// rule id once it is known.
func (w *walker) setContext(ctx string) {
	w.ctx = ctx
}

// expect consumes the next entry, which must have the given key.
func (w *walker) expect(key string) (*Section, error) {
	if w.pos >= len(w.entries) || !w.entries[w.pos].KeyIs(key) {
		return nil, ConfigError{Context: w.ctx, Reason: fmt.Sprintf("expect <%s>", key)}
	}
	s := w.entries[w.pos].Section
	w.pos++
	return s, nil
}

// peekIs reports whether the next entry has the given key.
func (w *walker) peekIs(key string) bool {
	return w.pos < len(w.entries) && w.entries[w.pos].KeyIs(key)
}

// next consumes and returns the next entry.
func (w *walker) next() (Entry, bool) {
	if w.pos >= len(w.entries) {
		return Entry{}, false
	}
	e := w.entries[w.pos]
	w.pos++
	return e, true
}

// end fails unless every entry was consumed.
func (w *walker) end() error {
	if w.pos != len(w.entries) {
		return ConfigError{Context: w.ctx, Reason: fmt.Sprintf("unexpected <%s>", w.entries[w.pos].Key)}
	}
	return nil
}
