package pipeline

import "github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"

// basePenalty gives the fixed per-severity deduction.
func basePenalty(s diagmodel.Severity) int {
	switch s {
	case diagmodel.SeverityCritical:
		return 25
	case diagmodel.SeverityWarning:
		return 10
	case diagmodel.SeverityIssue:
		return 5
	default: // insight
		return 0
	}
}

// Score computes the health score: start at 100, subtract the fixed
// per-finding penalty for every finding plus a bounded domain-specific
// adjustment, floor at 0, then derive level and status.
func Score(findings []diagmodel.Finding, domainPenalties ScorePenalties) diagmodel.HealthScore {
	score := 100
	hasCritical, hasWarning := false, false

	for _, f := range findings {
		score -= basePenalty(f.Severity)
		switch f.Severity {
		case diagmodel.SeverityCritical:
			hasCritical = true
		case diagmodel.SeverityWarning:
			hasWarning = true
		}
	}

	if domainPenalties != nil {
		extra := domainPenalties(findings)
		if extra > maxDomainPenalty {
			extra = maxDomainPenalty
		}
		if extra < 0 {
			extra = 0
		}
		score -= extra
	}

	if score < 0 {
		score = 0
	}

	return diagmodel.HealthScore{
		Score:  score,
		Level:  levelFor(score),
		Status: statusFor(hasCritical, hasWarning),
	}
}

func levelFor(score int) diagmodel.HealthLevel {
	switch {
	case score >= 80:
		return diagmodel.LevelExcellent
	case score >= 60:
		return diagmodel.LevelGood
	case score >= 40:
		return diagmodel.LevelFair
	default:
		return diagmodel.LevelPoor
	}
}

func statusFor(hasCritical, hasWarning bool) diagmodel.HealthStatus {
	switch {
	case hasCritical:
		return diagmodel.StatusCritical
	case hasWarning:
		return diagmodel.StatusWarning
	default:
		return diagmodel.StatusHealthy
	}
}
