package models

import "time"

// Counters holds per-category finding tallies for one validation run.
type Counters map[Category]int

// NewCounters returns counters with every known category set to zero.
func NewCounters() Counters {
	c := make(Counters, len(Categories))
	for _, cat := range Categories {
		c[cat] = 0
	}
	return c
}

// Total returns the sum over all categories.
func (c Counters) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Errors returns the sum over all categories except informational ones.
func (c Counters) Errors() int {
	return c.Total() - c[CategoryTrailer]
}

// Report is the outcome of one validation run.
type Report struct {
	RunID        string        `json:"runId"`
	Source       string        `json:"source"`
	Digest       string        `json:"digest"` // blake2b-256 over the schedule
	GeneratedAt  time.Time     `json:"generatedAt"`
	EventCount   int           `json:"eventCount"`
	SegmentCount int           `json:"segmentCount"`
	Counters     Counters      `json:"counters"`
	Findings     []Finding     `json:"findings"`
	Segments     []Segment     `json:"segments,omitempty"`
	Associations []Association `json:"associations,omitempty"`
}

// ForDay returns a copy of the report whose segments and associations are
// restricted to segments beginning on the given calendar day in loc.
// Counters and findings always cover the whole schedule.
func (r Report) ForDay(day time.Time, loc *time.Location) Report {
	y, m, d := day.Date()
	out := r
	out.Segments = nil
	out.Associations = nil

	for _, seg := range r.Segments {
		sy, sm, sd := seg.Begin.Start.In(loc).Date()
		if sy != y || sm != m || sd != d {
			continue
		}
		out.Segments = append(out.Segments, seg)
		for _, as := range r.Associations {
			if as.Program.Index > seg.Begin.Index && as.Program.Index < seg.End.Index {
				out.Associations = append(out.Associations, as)
			}
		}
	}
	return out
}
