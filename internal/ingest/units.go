package ingest

import (
	"fmt"

	"github.com/welltegra/brahan/internal/domain"
)

// Canonical units per forensic domain. Subsystems report in their native
// units; ingestion normalizes to these so predicates and correlations
// compare like with like.
var canonicalUnits = map[domain.Domain]string{
	domain.DomainCement:        "ratio", // bond quality 0..1
	domain.DomainCasing:        "mm",    // wall thickness / penetration
	domain.DomainPressure:      "kPa",
	domain.DomainDocumentation: "ratio", // completeness / authenticity 0..1
	domain.DomainOperations:    "count",
}

// conversionTable maps (domain, reported unit) to the multiplier into the
// canonical unit. An empty reported unit is taken as already canonical.
var conversionTable = map[domain.Domain]map[string]float64{
	domain.DomainCement: {
		"ratio":   1,
		"percent": 0.01,
		"%":       0.01,
	},
	domain.DomainCasing: {
		"mm": 1,
		"cm": 10,
		"m":  1000,
		"in": 25.4,
	},
	domain.DomainPressure: {
		"kPa": 1,
		"MPa": 1000,
		"bar": 100,
		"psi": 6.894757,
	},
	domain.DomainDocumentation: {
		"ratio":   1,
		"percent": 0.01,
		"%":       0.01,
	},
	domain.DomainOperations: {
		"count": 1,
	},
}

// normalizeUnit converts a reported value into the domain's canonical unit.
func normalizeUnit(d domain.Domain, unit string, value float64) (float64, string, error) {
	canonical, ok := canonicalUnits[d]
	if !ok {
		return 0, "", fmt.Errorf("no canonical unit for domain %q", d)
	}
	if unit == "" || unit == canonical {
		return value, canonical, nil
	}
	factor, ok := conversionTable[d][unit]
	if !ok {
		return 0, "", fmt.Errorf("unknown unit %q for domain %q", unit, d)
	}
	return value * factor, canonical, nil
}
