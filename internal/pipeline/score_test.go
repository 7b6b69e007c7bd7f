package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
)

func TestScoreEmptyFindingSetIsPerfect(t *testing.T) {
	s := Score(nil, nil)
	assert.Equal(t, 100, s.Score)
	assert.Equal(t, diagmodel.LevelExcellent, s.Level)
	assert.Equal(t, diagmodel.StatusHealthy, s.Status)
}

func TestScoreSubtractsFixedPenalties(t *testing.T) {
	findings := []diagmodel.Finding{
		{Severity: diagmodel.SeverityCritical},
		{Severity: diagmodel.SeverityWarning},
		{Severity: diagmodel.SeverityIssue},
		{Severity: diagmodel.SeverityInsight},
	}
	s := Score(findings, nil)
	assert.Equal(t, 100-25-10-5-0, s.Score)
	assert.Equal(t, diagmodel.StatusCritical, s.Status)
}

func TestScoreFloorsAtZero(t *testing.T) {
	findings := make([]diagmodel.Finding, 10)
	for i := range findings {
		findings[i] = diagmodel.Finding{Severity: diagmodel.SeverityCritical}
	}
	s := Score(findings, nil)
	assert.Equal(t, 0, s.Score)
	assert.Equal(t, diagmodel.LevelPoor, s.Level)
}

func TestScoreDomainPenaltyIsBounded(t *testing.T) {
	findings := []diagmodel.Finding{{Severity: diagmodel.SeverityInsight}}
	huge := func(f []diagmodel.Finding) int { return 1000 }
	s := Score(findings, huge)
	assert.Equal(t, 100-maxDomainPenalty, s.Score)
}

func TestScoreIsOrderInsensitive(t *testing.T) {
	// Scoring must be insensitive to finding order: score(F) = score(sort(F))
	a := []diagmodel.Finding{
		{Severity: diagmodel.SeverityWarning},
		{Severity: diagmodel.SeverityCritical},
	}
	b := []diagmodel.Finding{a[1], a[0]}
	assert.Equal(t, Score(a, nil).Score, Score(b, nil).Score)
}

func TestStatusWarningWithoutCritical(t *testing.T) {
	findings := []diagmodel.Finding{{Severity: diagmodel.SeverityWarning}}
	s := Score(findings, nil)
	assert.Equal(t, diagmodel.StatusWarning, s.Status)
}
