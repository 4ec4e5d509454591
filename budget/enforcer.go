package budget

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Budget type tags reported in Status.
const (
	TypeDaily   = "daily"
	TypeMonthly = "monthly"
	TypePerPR   = "per_pr"
)

// Config holds the budget limits. A zero limit means "always over":
// any spend, including zero, exceeds it.
type Config struct {
	DailyBudgetUSD   float64 `json:"daily_budget_usd" yaml:"daily_budget_usd"`
	PerPRBudgetUSD   float64 `json:"per_pr_budget_usd" yaml:"per_pr_budget_usd"`
	MonthlyBudgetUSD float64 `json:"monthly_budget_usd" yaml:"monthly_budget_usd"`

	// WarningThreshold is the spend fraction at which Status.Warning
	// trips. Defaults to 0.8.
	WarningThreshold float64 `json:"warning_threshold" yaml:"warning_threshold"`

	// RepoDailyBudgets overrides the daily budget per "owner/name".
	RepoDailyBudgets map[string]float64 `json:"repo_daily_budgets,omitempty" yaml:"repo_daily_budgets,omitempty"`
}

// DefaultConfig returns the stock budget limits.
func DefaultConfig() Config {
	return Config{
		DailyBudgetUSD:   50.0,
		PerPRBudgetUSD:   5.0,
		MonthlyBudgetUSD: 1000.0,
		WarningThreshold: 0.8,
	}
}

// Status is the result of a budget check.
type Status struct {
	Type         string  `json:"budget_type"`
	LimitUSD     float64 `json:"limit_usd"`
	SpentUSD     float64 `json:"spent_usd"`
	RemainingUSD float64 `json:"remaining_usd"`
	Percentage   float64 `json:"percentage"`
	Exceeded     bool    `json:"exceeded"`
	Warning      bool    `json:"warning"`
	CanProceed   bool    `json:"can_proceed"`
}

// Enforcer gates review work on configured spend limits.
type Enforcer struct {
	ledger CostLedger
	logger *slog.Logger

	mu  sync.RWMutex
	cfg Config
}

// NewEnforcer creates an enforcer over a cost ledger.
func NewEnforcer(ledger CostLedger, cfg Config, logger *slog.Logger) *Enforcer {
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = 0.8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{ledger: ledger, cfg: cfg, logger: logger}
}

// UpdateConfig replaces the budget limits. Used by config hot reload.
func (e *Enforcer) UpdateConfig(cfg Config) {
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = 0.8
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

func (e *Enforcer) config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// CheckDailyBudget reports spend against the daily limit for today's UTC
// day. A non-empty repo restricts spend to that repo and applies any
// per-repo override of the limit.
func (e *Enforcer) CheckDailyBudget(ctx context.Context, repo string) Status {
	cfg := e.config()

	limit := cfg.DailyBudgetUSD
	if repo != "" {
		if override, ok := cfg.RepoDailyBudgets[repo]; ok {
			limit = override
		}
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	spent := e.spendSince(ctx, dayStart, repo)
	return e.status(TypeDaily, limit, spent)
}

// CheckMonthlyBudget reports spend against the monthly limit for the
// current UTC month.
func (e *Enforcer) CheckMonthlyBudget(ctx context.Context) Status {
	cfg := e.config()

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	spent := e.spendSince(ctx, monthStart, "")
	return e.status(TypeMonthly, cfg.MonthlyBudgetUSD, spent)
}

// CheckPRBudget reports projected spend for one pull request: current
// spend plus the estimated cost of the next review.
func (e *Enforcer) CheckPRBudget(ctx context.Context, prNumber int, repo string, estimatedCost float64) Status {
	cfg := e.config()

	current, err := e.ledger.SpendForPR(ctx, repo, prNumber)
	if err != nil {
		e.logger.Warn("PR spend query failed, assuming zero",
			"repo", repo,
			"pr_number", prNumber,
			"error", err)
		current = 0
	}

	return e.status(TypePerPR, cfg.PerPRBudgetUSD, current+estimatedCost)
}

// CanReviewPR reports whether daily, monthly, and per-PR budgets all
// permit a review.
func (e *Enforcer) CanReviewPR(ctx context.Context, prNumber int, repo string, estimatedCost float64) bool {
	daily := e.CheckDailyBudget(ctx, repo)
	if daily.Warning && !daily.Exceeded {
		e.logger.Warn("Daily budget approaching limit",
			"repo", repo,
			"spent_usd", daily.SpentUSD,
			"limit_usd", daily.LimitUSD)
	}

	monthly := e.CheckMonthlyBudget(ctx)
	perPR := e.CheckPRBudget(ctx, prNumber, repo, estimatedCost)

	return daily.CanProceed && monthly.CanProceed && perPR.CanProceed
}

// RecordCost appends a spend entry for a completed review.
func (e *Enforcer) RecordCost(ctx context.Context, repo string, prNumber int, costUSD float64) error {
	return e.ledger.Record(ctx, CostRecord{
		Timestamp: time.Now().UTC(),
		CostUSD:   costUSD,
		Repo:      repo,
		PRNumber:  prNumber,
	})
}

// spendSince queries the ledger, treating errors as zero spend. The
// enforcer never blocks a review on its own plumbing.
func (e *Enforcer) spendSince(ctx context.Context, since time.Time, repo string) float64 {
	spent, err := e.ledger.SpendSince(ctx, since, repo)
	if err != nil {
		e.logger.Warn("Spend query failed, assuming zero",
			"since", since,
			"repo", repo,
			"error", err)
		return 0
	}
	return spent
}

func (e *Enforcer) status(budgetType string, limit, spent float64) Status {
	cfg := e.config()

	var percentage float64
	if limit > 0 {
		percentage = 100 * spent / limit
	}

	remaining := limit - spent
	if remaining < 0 {
		remaining = 0
	}

	exceeded := spent >= limit
	return Status{
		Type:         budgetType,
		LimitUSD:     limit,
		SpentUSD:     spent,
		RemainingUSD: remaining,
		Percentage:   percentage,
		Exceeded:     exceeded,
		Warning:      percentage/100 >= cfg.WarningThreshold,
		CanProceed:   !exceeded,
	}
}
