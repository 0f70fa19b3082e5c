package report

import "ptscheck/models"

// Aggregate folds finding streams into per-category counters and one ordered
// list. Streams keep the order they are passed in and every finding is
// counted exactly once.
func Aggregate(streams ...[]models.Finding) (models.Counters, []models.Finding) {
	counters := models.NewCounters()
	total := 0
	for _, s := range streams {
		total += len(s)
	}

	findings := make([]models.Finding, 0, total)
	for _, s := range streams {
		for _, f := range s {
			counters[f.Category]++
			findings = append(findings, f)
		}
	}
	return counters, findings
}
