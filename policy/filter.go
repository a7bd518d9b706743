package policy

import (
	"fmt"
	"strings"
	"sync"

	enc "github.com/named-data/ndnd/std/encoding"
)

// Filter decides whether a rule applies to a packet name.
// Filters are stateless after construction and safe to share across
// concurrent validations.
type Filter interface {
	Match(name enc.Name) bool
}

// FilterFactory builds a filter from its configuration section.
type FilterFactory func(section *Section) (Filter, error)

var filterMutex sync.RWMutex
var filterTypes = map[string]FilterFactory{}

// RegisterFilter registers a filter factory under a type discriminator.
func RegisterFilter(typ string, factory FilterFactory) {
	filterMutex.Lock()
	defer filterMutex.Unlock()
	filterTypes[strings.ToLower(typ)] = factory
}

// CreateFilter builds a filter from a filter section. The section must
// begin with a type entry naming a registered factory.
func CreateFilter(section *Section) (Filter, error) {
	if len(section.Entries) == 0 || !section.Entries[0].KeyIs("type") {
		return nil, ConfigError{Reason: "expect <filter.type>"}
	}
	typ := section.Entries[0].Section.Val

	filterMutex.RLock()
	factory := filterTypes[strings.ToLower(typ)]
	filterMutex.RUnlock()

	if factory == nil {
		return nil, ConfigError{Reason: fmt.Sprintf("unsupported filter type: %s", typ)}
	}
	return factory(section)
}

func init() {
	RegisterFilter("name", newNameFilter)
}

// NameRelation is the comparison a name filter applies between its
// configured name and the packet name.
type NameRelation int

const (
	RelationEqual NameRelation = iota
	RelationIsPrefixOf
	RelationIsStrictPrefixOf
)

func (r NameRelation) String() string {
	switch r {
	case RelationEqual:
		return "equal"
	case RelationIsPrefixOf:
		return "is-prefix-of"
	case RelationIsStrictPrefixOf:
		return "is-strict-prefix-of"
	default:
		return "unknown"
	}
}

func parseRelation(s string) (NameRelation, error) {
	switch strings.ToLower(s) {
	case "equal":
		return RelationEqual, nil
	case "is-prefix-of":
		return RelationIsPrefixOf, nil
	case "is-strict-prefix-of":
		return RelationIsStrictPrefixOf, nil
	}
	return 0, ConfigError{Reason: fmt.Sprintf("unsupported relation: %s", s)}
}

// matchRelation applies a relation between a configured name and a
// packet or key name. Shared by the name filter and the key locator
// matcher of the customized checker.
func matchRelation(relation NameRelation, fixed, name enc.Name) bool {
	switch relation {
	case RelationEqual:
		return fixed.Equal(name)
	case RelationIsPrefixOf:
		return fixed.IsPrefix(name)
	case RelationIsStrictPrefixOf:
		return len(name) > len(fixed) && fixed.IsPrefix(name)
	}
	return false
}

// nameFilter matches the packet name against a fixed name under a
// relation.
type nameFilter struct {
	name     enc.Name
	relation NameRelation
}

func newNameFilter(section *Section) (Filter, error) {
	w := walk(section, "filter")
	if _, err := w.expect("type"); err != nil {
		return nil, err
	}

	nameSec, err := w.expect("name")
	if err != nil {
		return nil, err
	}
	name, err := enc.NameFromStr(nameSec.Val)
	if err != nil {
		return nil, ConfigError{Reason: fmt.Sprintf("invalid filter name: %s", nameSec.Val)}
	}

	relSec, err := w.expect("relation")
	if err != nil {
		return nil, err
	}
	relation, err := parseRelation(relSec.Val)
	if err != nil {
		return nil, err
	}

	if err := w.end(); err != nil {
		return nil, err
	}

	return &nameFilter{name: name, relation: relation}, nil
}

func (f *nameFilter) Match(name enc.Name) bool {
	return matchRelation(f.relation, f.name, name)
}
