package watchdog

import (
	wildcard "github.com/IGLOU-EU/go-wildcard/v2"

	"github.com/halcyonops/vigil/internal/config"
	"github.com/halcyonops/vigil/internal/models"
)

// Filter suppresses known-acceptable entities before a probe sees them.
// Suppression is advisory only: it keeps entities out of findings, it never
// touches the underlying system.
type Filter struct {
	rules []config.WhitelistRule
}

// NewFilter creates a filter over the configured rules. Rules are immutable
// for the duration of the invocation and safe to share across probes.
func NewFilter(rules []config.WhitelistRule) *Filter {
	return &Filter{rules: rules}
}

// Split partitions entities into kept and suppressed. Exact identifier
// matches take precedence over wildcard patterns; the first matching rule
// wins and further rules are not consulted.
func (f *Filter) Split(kind models.EntityKind, entities []models.Entity) (kept, suppressed []models.Entity) {
	kept = make([]models.Entity, 0, len(entities))
	for _, entity := range entities {
		if f.matches(kind, entity) {
			suppressed = append(suppressed, entity)
			continue
		}
		kept = append(kept, entity)
	}
	return kept, suppressed
}

func (f *Filter) matches(kind models.EntityKind, entity models.Entity) bool {
	// Exact matches first.
	for _, rule := range f.rules {
		if rule.Kind != kind {
			continue
		}
		if rule.Pattern == entity.ID || (entity.Name != "" && rule.Pattern == entity.Name) {
			return true
		}
	}
	// Then wildcard patterns.
	for _, rule := range f.rules {
		if rule.Kind != kind {
			continue
		}
		if wildcard.Match(rule.Pattern, entity.ID) {
			return true
		}
		if entity.Name != "" && wildcard.Match(rule.Pattern, entity.Name) {
			return true
		}
	}
	return false
}
