package quality

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sqlflowx/transformengine/internal/engine"
	"github.com/sqlflowx/transformengine/internal/model"
	"github.com/sqlflowx/transformengine/internal/sqlident"
)

// profileCacheEntry holds a cached profile alongside its generation time,
// so Profile can decide whether to recompute.
type profileCacheEntry struct {
	profile model.QualityProfile
	at      time.Time
}

// Engine runs data-quality rules against engine.Client tables: a built-in
// set plus a registry for user-supplied rules, with a per-table profile
// cache (spec.md §4.10).
type Engine struct {
	eng engine.Client

	mu       sync.Mutex
	rules    map[string][]Rule // table -> registered rules (built-in + user)
	profiles map[string]profileCacheEntry
	ttl      time.Duration
}

// NewEngine builds a quality engine over eng with a profile-cache TTL.
func NewEngine(eng engine.Client, cacheTTL time.Duration) *Engine {
	return &Engine{
		eng:      eng,
		rules:    map[string][]Rule{},
		profiles: map[string]profileCacheEntry{},
		ttl:      cacheTTL,
	}
}

// RegisterRule attaches rule to table, in addition to the built-in rules
// Profile derives from the TableSpec it is given. Invalidates that table's
// cached profile.
func (e *Engine) RegisterRule(table string, rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[table] = append(e.rules[table], rule)
	delete(e.profiles, table)
}

// RunRule executes a single rule against table, dispatching to its
// Predicate if set or substituting its SQLTemplate otherwise.
func (e *Engine) RunRule(ctx context.Context, table string, rule Rule) (model.ValidationResult, error) {
	start := time.Now()

	var (
		result model.ValidationResult
		err    error
	)
	switch {
	case rule.Predicate != nil:
		result, err = rule.Predicate(ctx, e.eng, table, rule)
	case rule.SQLTemplate != "":
		result, err = e.runTemplateRule(ctx, table, rule)
	default:
		return model.ValidationResult{}, fmt.Errorf("rule %q has neither a predicate nor an SQL template", rule.Name)
	}
	if err != nil {
		return model.ValidationResult{}, err
	}

	result.ExecutionTimeMS = time.Since(start).Milliseconds()
	return result, nil
}

func (e *Engine) runTemplateRule(ctx context.Context, table string, rule Rule) (model.ValidationResult, error) {
	qTable, err := sqlident.QuoteIdentifier(sqlident.DialectPrimary, table)
	if err != nil {
		return model.ValidationResult{}, err
	}
	sql := fmt.Sprintf(rule.SQLTemplate, qTable)
	count, err := scalar(ctx, e.eng, sql)
	if err != nil {
		return model.ValidationResult{}, err
	}
	passed := count == 0
	return buildResult(rule, passed, fmt.Sprintf("rule %q returned %d", rule.Name, count), float64(count)), nil
}

// Profile runs every registered rule for table (built-ins supplied by the
// caller through spec, plus anything added via RegisterRule) and returns
// a cached QualityProfile, recomputing only once the TTL has elapsed.
func (e *Engine) Profile(ctx context.Context, table string, spec TableSpec) (model.QualityProfile, error) {
	e.mu.Lock()
	if cached, ok := e.profiles[table]; ok && time.Since(cached.at) < e.ttl {
		e.mu.Unlock()
		return cached.profile, nil
	}
	rules := append(builtinRules(spec), e.rules[table]...)
	e.mu.Unlock()

	results := make([]model.ValidationResult, 0, len(rules))
	for _, rule := range rules {
		result, err := e.RunRule(ctx, table, rule)
		if err != nil {
			return model.QualityProfile{}, err
		}
		results = append(results, result)
	}

	profile := scoreProfile(table, results)

	e.mu.Lock()
	e.profiles[table] = profileCacheEntry{profile: profile, at: time.Now()}
	e.mu.Unlock()

	return profile, nil
}

// TableSpec tells Profile which built-in rules are applicable to table —
// a rule is only run when its required column/key information is present.
type TableSpec struct {
	NullCheckColumns     []string
	KeyColumns           []string
	TimeColumn           string
	NegativeCheckColumns []string
	ForeignKeys          []ForeignKey
}

// ForeignKey describes one referential-integrity check to run.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

func builtinRules(spec TableSpec) []Rule {
	var rules []Rule
	for _, col := range spec.NullCheckColumns {
		rules = append(rules, NullRateRule(col))
	}
	if len(spec.KeyColumns) > 0 {
		rules = append(rules, DuplicateCountRule(spec.KeyColumns))
	}
	if spec.TimeColumn != "" {
		rules = append(rules, FreshnessRule(spec.TimeColumn))
	}
	for _, col := range spec.NegativeCheckColumns {
		rules = append(rules, NegativeValuesRule(col))
	}
	for _, fk := range spec.ForeignKeys {
		rules = append(rules, ReferentialIntegrityRule(fk.Column, fk.RefTable, fk.RefColumn))
	}
	return rules
}

func scoreProfile(table string, results []model.ValidationResult) model.QualityProfile {
	var (
		totalWeight  float64
		passedWeight float64
		critical     int
		errors       int
	)
	for _, r := range results {
		weight := severityWeight[r.Severity]
		totalWeight += weight
		if r.Passed {
			passedWeight += weight
		} else {
			switch r.Severity {
			case model.SeverityCritical:
				critical++
			case model.SeverityError:
				errors++
			}
		}
	}

	score := 1.0
	if totalWeight > 0 {
		score = passedWeight / totalWeight
	}

	return model.QualityProfile{
		TableName:      table,
		OverallScore:   score,
		CriticalIssues: critical,
		ErrorIssues:    errors,
		ColumnProfiles: map[string]any{},
		Results:        results,
		GeneratedAt:    time.Now(),
	}
}
