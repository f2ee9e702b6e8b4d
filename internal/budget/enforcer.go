// Package budget implements hard spend limits for chat requests.
//
// Spend and limits live in Redis so that every replica sees the same totals.
// When Redis is unavailable the enforcer either allows all requests
// (fail-open) or blocks them (fail-closed), depending on configuration.
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gemini-Podplai/mumabear/pkg/cache"
	log "github.com/sirupsen/logrus"
)

// BudgetScope defines the entity to which a budget applies.
type BudgetScope string

const (
	ScopeAgent BudgetScope = "agent"
	ScopeTeam  BudgetScope = "team"
	ScopeUser  BudgetScope = "user"
	ScopeOrg   BudgetScope = "org"
)

// ValidScope reports whether s names a known scope.
func ValidScope(s string) bool {
	switch BudgetScope(s) {
	case ScopeAgent, ScopeTeam, ScopeUser, ScopeOrg:
		return true
	}
	return false
}

// ErrBudgetExceeded is returned by callers that reject a request after a
// failed CheckBudget.
var ErrBudgetExceeded = errors.New("budget exceeded")

// DefaultWindow is the length of a budget period for entities without an
// explicit one.
const DefaultWindow = 24 * time.Hour

// store is the subset of *cache.Cache the enforcer needs.
type store interface {
	GetLimit(ctx context.Context, scope, entityID string) (float64, bool, error)
	SetLimit(ctx context.Context, scope, entityID string, limit float64, period time.Duration) error
	GetPeriod(ctx context.Context, scope, entityID string) (time.Duration, bool, error)
	GetSpend(ctx context.Context, scope, entityID string) (float64, error)
	IncrSpend(ctx context.Context, scope, entityID string, amount float64, window time.Duration) (float64, error)
	ResetSpend(ctx context.Context, scope, entityID string) error
}

// Enforcer manages budget checks and enforcement. A nil cache is allowed and
// behaves like an unreachable Redis.
type Enforcer struct {
	cache    store
	failOpen bool
	window   time.Duration
	defaults map[BudgetScope]float64
}

// NewEnforcer creates a budget Enforcer.
func NewEnforcer(c *cache.Cache, failOpen bool) *Enforcer {
	e := &Enforcer{
		failOpen: failOpen,
		window:   DefaultWindow,
		defaults: make(map[BudgetScope]float64),
	}
	if c != nil {
		e.cache = c
	}
	return e
}

// WithDefaultLimit applies limit to every entity of scope that has no
// explicit limit. A non-positive limit disables the default.
func (e *Enforcer) WithDefaultLimit(scope BudgetScope, limit float64) *Enforcer {
	if limit > 0 {
		e.defaults[scope] = limit
	} else {
		delete(e.defaults, scope)
	}
	return e
}

// WithWindow sets the period length used for entities without their own.
func (e *Enforcer) WithWindow(d time.Duration) *Enforcer {
	if d > 0 {
		e.window = d
	}
	return e
}

// Enabled reports whether a Redis backend is attached.
func (e *Enforcer) Enabled() bool { return e.cache != nil }

// CheckBudget reports whether entityID can spend estimatedCostUSD more.
// Entities without a limit are always allowed.
func (e *Enforcer) CheckBudget(ctx context.Context, scope BudgetScope, entityID string, estimatedCostUSD float64) (bool, error) {
	if e.cache == nil {
		return e.failOpen, nil
	}

	limit, ok, err := e.cache.GetLimit(ctx, string(scope), entityID)
	if err != nil {
		return e.degraded(scope, entityID, err), nil
	}
	if !ok {
		limit, ok = e.defaults[scope]
	}
	if !ok || limit <= 0 {
		return true, nil
	}

	spent, err := e.cache.GetSpend(ctx, string(scope), entityID)
	if err != nil {
		return e.degraded(scope, entityID, err), nil
	}

	if spent+estimatedCostUSD > limit {
		log.WithFields(log.Fields{
			"scope":     scope,
			"entity_id": entityID,
			"spent_usd": spent,
			"limit_usd": limit,
		}).Warn("Budget exhausted")
		return false, nil
	}
	return true, nil
}

// RecordSpend adds costUSD to the entity's spend for the current period.
// The period is the one stored by SetBudget, or the enforcer's window.
func (e *Enforcer) RecordSpend(ctx context.Context, scope BudgetScope, entityID string, costUSD float64) error {
	if e.cache == nil || costUSD <= 0 {
		return nil
	}
	window := e.window
	if period, ok, err := e.cache.GetPeriod(ctx, string(scope), entityID); err != nil {
		return fmt.Errorf("budget: get period: %w", err)
	} else if ok {
		window = period
	}
	if _, err := e.cache.IncrSpend(ctx, string(scope), entityID, costUSD, window); err != nil {
		return fmt.Errorf("budget: record spend: %w", err)
	}
	return nil
}

// SetBudget stores an explicit limit for the entity. A positive periodDays
// sets the length of the entity's spend period.
func (e *Enforcer) SetBudget(ctx context.Context, scope BudgetScope, entityID string, limitUSD float64, periodDays int) error {
	if e.cache == nil {
		return nil
	}
	period := time.Duration(periodDays) * 24 * time.Hour
	if err := e.cache.SetLimit(ctx, string(scope), entityID, limitUSD, period); err != nil {
		return fmt.Errorf("budget: set limit: %w", err)
	}
	return nil
}

// GetSpent returns the entity's spend in the current period.
func (e *Enforcer) GetSpent(ctx context.Context, scope BudgetScope, entityID string) (float64, error) {
	if e.cache == nil {
		return 0, nil
	}
	spent, err := e.cache.GetSpend(ctx, string(scope), entityID)
	if err != nil {
		return 0, fmt.Errorf("budget: get spend: %w", err)
	}
	return spent, nil
}

// ResetSpend starts a new period for the entity.
func (e *Enforcer) ResetSpend(ctx context.Context, scope BudgetScope, entityID string) error {
	if e.cache == nil {
		return nil
	}
	if err := e.cache.ResetSpend(ctx, string(scope), entityID); err != nil {
		return fmt.Errorf("budget: reset spend: %w", err)
	}
	return nil
}

func (e *Enforcer) degraded(scope BudgetScope, entityID string, err error) bool {
	log.WithError(err).WithFields(log.Fields{
		"scope":     scope,
		"entity_id": entityID,
		"fail_open": e.failOpen,
	}).Warn("Budget backend unavailable")
	return e.failOpen
}
