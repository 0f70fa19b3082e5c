package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptscheck/models"
)

func finding(cat models.Category, detail string) models.Finding {
	return models.NewFinding(cat, models.SeverityError, detail)
}

func TestAggregateCountsEveryFinding(t *testing.T) {
	continuity := []models.Finding{
		finding(models.CategoryContinuityGap, "a"),
		finding(models.CategoryContinuityGap, "b"),
		finding(models.CategoryContinuityOverlap, "c"),
	}
	segments := []models.Finding{finding(models.CategoryOrphanSegmentBoundary, "d")}
	durations := []models.Finding{
		finding(models.CategoryTrailer, "e"),
		finding(models.CategoryLengthError, "f"),
	}

	counters, findings := Aggregate(continuity, segments, nil, durations)

	require.Len(t, findings, 6)
	assert.Equal(t, 6, counters.Total())
	assert.Equal(t, 5, counters.Errors())
	assert.Equal(t, 2, counters[models.CategoryContinuityGap])
	assert.Equal(t, 1, counters[models.CategoryContinuityOverlap])
	assert.Equal(t, 0, counters[models.CategoryNoOverlayFound])

	details := make([]string, len(findings))
	for i, f := range findings {
		details[i] = f.Detail
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, details)
}

func TestAggregateEmpty(t *testing.T) {
	counters, findings := Aggregate()

	assert.Empty(t, findings)
	assert.NotNil(t, findings)
	assert.Len(t, counters, len(models.Categories))
	assert.Zero(t, counters.Total())
}

func TestAggregateUnknownCategoryIsStillCounted(t *testing.T) {
	counters, _ := Aggregate([]models.Finding{finding("custom", "x")})
	assert.Equal(t, 1, counters["custom"])
	assert.Equal(t, 1, counters.Total())
}
