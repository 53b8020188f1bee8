// Package validator implements the Validator & Safety Net (spec §4.4): an
// ordered pipeline of checks, any of which may set an error (terminal), a
// warning (continue), a risk-escalation (force approval), or an
// auto-rewrite.
package validator

import (
	"context"
	"strings"

	"github.com/nlsql/gateway/internal/domain"
	"github.com/nlsql/gateway/internal/external"
	"github.com/nlsql/gateway/internal/platform/config"
	"github.com/nlsql/gateway/internal/validator/injection"
)

// Validator runs the spec §4.4 check pipeline in order.
type Validator struct {
	Injection        *injection.Detector
	CostEstimator    external.CostEstimator
	RLS              external.RLSService
	AdaptiveApproval external.AdaptiveApproval
	Config           *config.Config
	QuotaStore       QuotaStore
}

// QuotaStore tracks and enforces each user's daily query quota (spec §4.4
// check 7). A KV-backed implementation lives in internal/external.
type QuotaStore interface {
	IncrementAndCheck(ctx context.Context, userID string, dailyLimit int) (exceeded bool, err error)
}

// New builds a Validator from its collaborators.
func New(cfg *config.Config, costEstimator external.CostEstimator, rls external.RLSService, adaptiveApproval external.AdaptiveApproval, quota QuotaStore) *Validator {
	return &Validator{
		Injection:        injection.New(),
		CostEstimator:    costEstimator,
		RLS:              rls,
		AdaptiveApproval: adaptiveApproval,
		Config:           cfg,
		QuotaStore:       quota,
	}
}

// Validate runs validate(ticket, sql, schema, role) -> ValidationVerdict
// (spec §4.4 contract), executing every check in the exact documented
// order and folding their outcomes into one verdict.
func (v *Validator) Validate(ctx context.Context, ticket *domain.QueryTicket, sql string, schema *domain.SchemaSnapshot, role string) domain.ValidationVerdict {
	verdict := domain.ValidationVerdict{Valid: true, QueryKind: classifyQueryKind(sql)}

	// Check 1: injection scan.
	findings, score := v.Injection.Scan(sql)
	verdict.InjectionFindings = findings
	verdict.RiskScore = score
	if injection.HasBlockingSeverity(findings) {
		verdict.Valid = false
		verdict.Errors = append(verdict.Errors, "query rejected: high-severity injection pattern detected")
		verdict.RiskLevel = domain.RiskCritical
		return verdict
	}
	if score >= 30 {
		verdict.ForceApproval = true
		verdict.RiskReasons = append(verdict.RiskReasons, "injection risk score >= 30")
	}

	// Check 2: structural validity.
	if err := checkStructural(sql, verdict.QueryKind); err != nil {
		verdict.Valid = false
		verdict.Errors = append(verdict.Errors, err.Error())
		return verdict
	}

	// Check 3: dialect validation (best-effort; warnings only here — the
	// Synthesizer already performs a conversion attempt upstream).
	if warn, ok := checkDialect(sql, ticket.DatabaseKind); ok {
		verdict.Warnings = append(verdict.Warnings, warn)
	}

	// Check 4: scope limits.
	limits := v.Config.RoleLimitFor(role)
	scope := computeScope(sql)
	maxTables, maxJoins := limits.MaxTables, limits.MaxJoins
	if score >= 30 {
		maxTables--
		maxJoins--
	}
	scope.MaxTables, scope.MaxJoins = maxTables, maxJoins
	verdict.ScopeInfo = scope
	if (maxTables > 0 && scope.TableCount > maxTables) || (maxJoins > 0 && scope.JoinCount > maxJoins) {
		verdict.ForceApproval = true
		verdict.RiskReasons = append(verdict.RiskReasons, "exceeds role scope limits")
	}

	// Check 5: sensitive-table detection.
	for _, table := range tablesIn(sql) {
		if v.Config.IsSensitiveTable(table) {
			verdict.ForceApproval = true
			verdict.RiskReasons = append(verdict.RiskReasons, "sensitive table "+table)
		}
	}

	// Check 6: cartesian-join guard.
	if hasCartesianJoin(sql) {
		verdict.ForceApproval = true
		verdict.RiskReasons = append(verdict.RiskReasons, "cartesian join without predicate")
	}

	// Check 7: role-based row limit + daily quota.
	rowCap := limits.MaxRows
	if strings.EqualFold(role, "admin") {
		rowCap = 0
	}
	if verdict.QueryKind == domain.QuerySelect && rowCap > 0 {
		sql = enforceRowLimit(sql, ticket.DatabaseKind, rowCap)
	}
	if v.QuotaStore != nil {
		exceeded, err := v.QuotaStore.IncrementAndCheck(ctx, ticket.OwnerUser, limits.DailyQueryQuota)
		if err == nil && exceeded {
			verdict.Valid = false
			verdict.Errors = append(verdict.Errors, "daily query quota exhausted")
			return verdict
		}
	}

	// Check 8: row-level security.
	if v.RLS != nil {
		if result, err := v.RLS.Enforce(ctx, sql, ticket.OwnerUser, role, nil); err == nil {
			sql = result.ModifiedSQL
			verdict.RLSApplied = result.Applied
			verdict.RLSExplanation = result.Reason
		}
	}

	// Check 9: cost estimate.
	if v.CostEstimator != nil {
		if estimate, err := v.CostEstimator.Estimate(ctx, sql, ticket.DatabaseKind, false); err == nil {
			verdict.CostEstimate = estimate
			isAdmin := strings.EqualFold(role, "admin")
			if estimate.Level == domain.CostCritical && !isAdmin {
				verdict.Valid = false
				verdict.Errors = append(verdict.Errors, "query blocked: critical estimated cost")
				return verdict
			}
			if estimate.Level == domain.CostHigh {
				verdict.ForceApproval = true
				verdict.RiskReasons = append(verdict.RiskReasons, "high estimated cost")
			}
			if estimate.Cardinality > 1000 && !ticket.AutoApprove {
				verdict.ForceApproval = true
				verdict.RiskReasons = append(verdict.RiskReasons, "expected cardinality exceeds 1000")
			}
		}
	}

	// Check 10: approval-gate decision.
	verdict.RequiresApproval = !ticket.AutoApprove
	if v.AdaptiveApproval != nil && !verdict.ForceApproval {
		if fingerprint := sqlFingerprintFor(sql); fingerprint != "" {
			if ok, err := v.AdaptiveApproval.ShouldAutoApprove(ctx, ticket.OwnerUser, fingerprint); err == nil && ok {
				verdict.RequiresApproval = false
			}
		}
	}
	if verdict.ForceApproval {
		verdict.RequiresApproval = true
	}

	verdict.RiskLevel = riskLevelFor(verdict)
	return verdict
}

func classifyQueryKind(sql string) domain.QueryKind {
	trimmed := strings.TrimSpace(strings.ToUpper(sql))
	switch {
	case strings.HasPrefix(trimmed, "SELECT"), strings.HasPrefix(trimmed, "WITH"):
		return domain.QuerySelect
	case strings.HasPrefix(trimmed, "CREATE"), strings.HasPrefix(trimmed, "ALTER"), strings.HasPrefix(trimmed, "DROP"):
		return domain.QueryDDL
	case strings.HasPrefix(trimmed, "INSERT"), strings.HasPrefix(trimmed, "UPDATE"), strings.HasPrefix(trimmed, "DELETE"):
		return domain.QueryDML
	default:
		return domain.QueryOther
	}
}

func riskLevelFor(v domain.ValidationVerdict) domain.RiskLevel {
	switch {
	case !v.Valid:
		return domain.RiskCritical
	case v.RiskScore >= 60:
		return domain.RiskHigh
	case v.ForceApproval:
		return domain.RiskMedium
	case v.RiskScore >= 30:
		return domain.RiskMedium
	case len(v.Warnings) > 0:
		return domain.RiskLow
	default:
		return domain.RiskSafe
	}
}

func sqlFingerprintFor(sql string) string {
	return strings.ToLower(strings.Join(strings.Fields(sql), " "))
}
