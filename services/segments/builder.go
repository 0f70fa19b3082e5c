package segments

import (
	"fmt"

	"ptscheck/config"
	"ptscheck/models"
)

// Builder pairs Begin/End marker events into segments.
type Builder struct {
	begin map[string]struct{}
	end   map[string]struct{}
}

// NewBuilder creates a builder for the marker content ids of the rules table.
func NewBuilder(rules config.SegmentRules) *Builder {
	b := &Builder{
		begin: make(map[string]struct{}, len(rules.Begin)),
		end:   make(map[string]struct{}, len(rules.End)),
	}
	for _, id := range rules.Begin {
		b.begin[id] = struct{}{}
	}
	for _, id := range rules.End {
		b.end[id] = struct{}{}
	}
	return b
}

// Boundaries returns the marker events among the schedule's non-metadata
// events, in schedule order.
func (b *Builder) Boundaries(schedule models.Schedule) []models.Boundary {
	var out []models.Boundary
	for _, ev := range schedule.Without(models.KindMetadata) {
		if _, ok := b.begin[ev.ContentID]; ok {
			out = append(out, models.Boundary{Kind: models.BoundaryBegin, Event: ev})
		} else if _, ok := b.end[ev.ContentID]; ok {
			out = append(out, models.Boundary{Kind: models.BoundaryEnd, Event: ev})
		}
	}
	return out
}

// Build walks the markers and emits a segment for every Begin directly
// followed by an End. Markers are only paired with their immediate
// neighbour; every marker left unpaired yields one orphan finding.
func (b *Builder) Build(schedule models.Schedule) ([]models.Segment, []models.Finding) {
	markers := b.Boundaries(schedule)

	var (
		segments []models.Segment
		findings []models.Finding
	)
	for i := 0; i < len(markers); {
		current := markers[i]
		if current.Kind == models.BoundaryEnd {
			findings = append(findings, orphan(current, "end marker without a preceding begin"))
			i++
			continue
		}
		if i+1 >= len(markers) {
			findings = append(findings, orphan(current, "begin marker without an end before the schedule ends"))
			i++
			continue
		}
		next := markers[i+1]
		if next.Kind != models.BoundaryEnd {
			findings = append(findings, orphan(current, "begin marker followed by another begin"))
			i++
			continue
		}

		segments = append(segments, models.Segment{
			Begin:  current.Event,
			End:    next.Event,
			Events: schedule.Range(current.Event.Index, next.Event.Index),
		})
		i += 2
	}
	return segments, findings
}

func orphan(boundary models.Boundary, reason string) models.Finding {
	return models.NewFinding(
		models.CategoryOrphanSegmentBoundary,
		models.SeverityError,
		fmt.Sprintf("%s (contentId %s)", reason, boundary.Event.ContentID),
		boundary.Event,
	)
}
