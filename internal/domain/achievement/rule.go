package achievement

import (
	"context"

	"github.com/rotorcup/rotorcup-hub/internal/domain/competition"
	"github.com/rotorcup/rotorcup-hub/internal/domain/pilot"
	"github.com/rotorcup/rotorcup-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RULE VARIANTS
// Four trigger shapes. Rules are pure predicates over the state they are
// handed; they never query storage themselves beyond what a global rule
// was constructed with.
// ══════════════════════════════════════════════════════════════════════════════

// Rule is the common surface of all rule variants. Name is the stable
// achievement name used as the dedupe key for grants.
type Rule interface {
	Name() string
	Description() string
}

// TimeUpdateRule is evaluated once per pilot appearing in a delta batch
// after a result poll.
type TimeUpdateRule interface {
	Rule
	CheckDeltas(p *pilot.Pilot, deltas []competition.ResultDelta) bool
}

// CompetitionRule is evaluated once per pilot present in a closed
// competition's final results.
type CompetitionRule interface {
	Rule
	CheckCompetition(p *pilot.Pilot, c *competition.Competition) bool
}

// SeasonRule is evaluated once per pilot in final season standings.
type SeasonRule interface {
	Rule
	CheckSeason(p *pilot.Pilot, results []competition.SeasonResult) bool
}

// GlobalGrant is one grant candidate produced by a global rule's scan.
// TenantID may be empty when the candidate has no tenant attribution.
type GlobalGrant struct {
	PilotID shared.PilotID
	// Name overrides the rule name when a rule mints per-threshold
	// achievements (e.g. one name per streak milestone). Empty means
	// "use the rule name".
	Name     string
	TenantID shared.TenantID
}

// GlobalRule is a self-contained scan with no per-pilot fan-out, invoked
// once per relevant lifecycle event. Global rules are constructed with
// whatever read-only sources they need.
type GlobalRule interface {
	Rule
	Check(ctx context.Context) ([]GlobalGrant, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// Adding a rule is a registration-time, compile-checked action: the
// registry only accepts values satisfying one of the four variant
// interfaces, so there is no open-ended dynamic type discovery at
// evaluation time.
// ══════════════════════════════════════════════════════════════════════════════

// Registry holds the registered rules per variant.
type Registry struct {
	timeUpdate  []TimeUpdateRule
	competition []CompetitionRule
	season      []SeasonRule
	global      []GlobalRule
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterTimeUpdate adds a time-update rule.
func (r *Registry) RegisterTimeUpdate(rules ...TimeUpdateRule) *Registry {
	r.timeUpdate = append(r.timeUpdate, rules...)
	return r
}

// RegisterCompetition adds an after-competition rule.
func (r *Registry) RegisterCompetition(rules ...CompetitionRule) *Registry {
	r.competition = append(r.competition, rules...)
	return r
}

// RegisterSeason adds an after-season rule.
func (r *Registry) RegisterSeason(rules ...SeasonRule) *Registry {
	r.season = append(r.season, rules...)
	return r
}

// RegisterGlobal adds a global rule.
func (r *Registry) RegisterGlobal(rules ...GlobalRule) *Registry {
	r.global = append(r.global, rules...)
	return r
}

// TimeUpdateRules returns the registered time-update rules.
func (r *Registry) TimeUpdateRules() []TimeUpdateRule { return r.timeUpdate }

// CompetitionRules returns the registered after-competition rules.
func (r *Registry) CompetitionRules() []CompetitionRule { return r.competition }

// SeasonRules returns the registered after-season rules.
func (r *Registry) SeasonRules() []SeasonRule { return r.season }

// GlobalRules returns the registered global rules.
func (r *Registry) GlobalRules() []GlobalRule { return r.global }
