// Package catalog loads and validates the versioned predicate catalog.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/welltegra/brahan/internal/domain"
)

// Catalog is the externally supplied predicate definition set: 569
// predicates across 5 domains, grouped by the 7-gate pipeline.
type Catalog struct {
	Version    string              `yaml:"version" json:"version"`
	Gates      []domain.GateDef    `yaml:"gates" json:"gates"`
	Predicates []*domain.Predicate `yaml:"predicates" json:"predicates"`
}

// LoadFile reads and validates a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(c.Gates) == 0 {
		c.Gates = domain.DefaultGates()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// New builds a validated catalog from already-loaded parts (e.g. the
// repository copy).
func New(version string, gates []domain.GateDef, predicates []*domain.Predicate) (*Catalog, error) {
	if len(gates) == 0 {
		gates = domain.DefaultGates()
	}
	c := &Catalog{Version: version, Gates: gates, Predicates: predicates}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate fails fast with a CatalogValidationError when the catalog
// references an undefined gate or domain, or contains duplicate predicate
// ids. A run must never start against an invalid catalog.
func (c *Catalog) Validate() error {
	var problems []string

	known := make(map[domain.Domain]bool, len(domain.KnownDomains()))
	for _, d := range domain.KnownDomains() {
		known[d] = true
	}

	if len(c.Gates) != domain.GateCount {
		problems = append(problems, fmt.Sprintf("expected %d gates, got %d", domain.GateCount, len(c.Gates)))
	}

	gateDomains := make(map[domain.Domain]bool)
	seenIndex := make(map[int]bool)
	for _, g := range c.Gates {
		if g.Index < 1 || g.Index > domain.GateCount {
			problems = append(problems, fmt.Sprintf("gate %q has index %d outside 1..%d", g.Name, g.Index, domain.GateCount))
		}
		if seenIndex[g.Index] {
			problems = append(problems, fmt.Sprintf("duplicate gate index %d", g.Index))
		}
		seenIndex[g.Index] = true
		if g.RequiredPassRatio < 0 || g.RequiredPassRatio > 1 {
			problems = append(problems, fmt.Sprintf("gate %q pass ratio %.2f outside [0,1]", g.Name, g.RequiredPassRatio))
		}
		if len(g.Domains) == 0 {
			problems = append(problems, fmt.Sprintf("gate %q owns no domains", g.Name))
		}
		for _, d := range g.Domains {
			if !known[d] {
				problems = append(problems, fmt.Sprintf("gate %q references undefined domain %q", g.Name, d))
			}
			gateDomains[d] = true
		}
	}

	seenID := make(map[string]bool, len(c.Predicates))
	for _, p := range c.Predicates {
		if p.ID == "" {
			problems = append(problems, "predicate with empty id")
			continue
		}
		if seenID[p.ID] {
			problems = append(problems, fmt.Sprintf("duplicate predicate id %q", p.ID))
		}
		seenID[p.ID] = true
		if !known[p.Domain] {
			problems = append(problems, fmt.Sprintf("predicate %q references undefined domain %q", p.ID, p.Domain))
		} else if !gateDomains[p.Domain] {
			problems = append(problems, fmt.Sprintf("predicate %q domain %q is owned by no gate", p.ID, p.Domain))
		}
		if p.Expression == "" {
			problems = append(problems, fmt.Sprintf("predicate %q has no expression", p.ID))
		}
		if p.Weight < 0 || p.Weight > 1 {
			problems = append(problems, fmt.Sprintf("predicate %q weight %.2f outside [0,1]", p.ID, p.Weight))
		}
		if p.MinConfidence < 0 || p.MinConfidence > 1 {
			problems = append(problems, fmt.Sprintf("predicate %q min confidence %.2f outside [0,1]", p.ID, p.MinConfidence))
		}
	}

	if len(problems) > 0 {
		return &domain.CatalogValidationError{Problems: problems}
	}
	return nil
}

// GatesInOrder returns the gates sorted by ascending index.
func (c *Catalog) GatesInOrder() []domain.GateDef {
	gates := make([]domain.GateDef, len(c.Gates))
	copy(gates, c.Gates)
	sort.Slice(gates, func(i, j int) bool { return gates[i].Index < gates[j].Index })
	return gates
}

// EnabledPredicates returns the enabled predicates sorted by id for
// deterministic iteration.
func (c *Catalog) EnabledPredicates() []*domain.Predicate {
	preds := make([]*domain.Predicate, 0, len(c.Predicates))
	for _, p := range c.Predicates {
		if p.Enabled {
			preds = append(preds, p)
		}
	}
	sort.Slice(preds, func(i, j int) bool { return preds[i].ID < preds[j].ID })
	return preds
}

// PredicatesByDomain groups enabled predicates per domain.
func (c *Catalog) PredicatesByDomain() map[domain.Domain][]*domain.Predicate {
	byDomain := make(map[domain.Domain][]*domain.Predicate)
	for _, p := range c.EnabledPredicates() {
		byDomain[p.Domain] = append(byDomain[p.Domain], p)
	}
	return byDomain
}
