package segments

import (
	"testing"
	"time"

	"ptscheck/config"
	"ptscheck/models"
)

const (
	begin = "BEGIN"
	end   = "END"
)

var base = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

func newTestBuilder() *Builder {
	return NewBuilder(config.SegmentRules{Begin: []string{begin}, End: []string{end}})
}

// schedule builds a schedule from compact codes: "B" begin marker, "E" end
// marker, "P" program, "L" logo, "M" metadata.
func schedule(codes ...string) models.Schedule {
	events := make([]models.Event, 0, len(codes))
	for i, s := range codes {
		ev := models.Event{
			EventID:  s + string(rune('0'+i)),
			Start:    base.Add(time.Duration(i) * time.Minute),
			Duration: time.Minute,
		}
		switch s {
		case "B":
			ev.Kind, ev.ContentID = models.KindProgram, begin
		case "E":
			ev.Kind, ev.ContentID = models.KindProgram, end
		case "P":
			ev.Kind, ev.ContentID = models.KindProgram, "content"
		case "L":
			ev.Kind = models.KindLogoOverlay
		case "M":
			ev.Kind, ev.ContentID = models.KindMetadata, begin // metadata never counts as a marker
		}
		events = append(events, ev)
	}
	return models.NewSchedule("test", events)
}

func TestBuildWellFormedSegment(t *testing.T) {
	sched := schedule("P", "B", "P", "L", "M", "P", "E", "P")

	segs, findings := newTestBuilder().Build(sched)
	if len(findings) != 0 {
		t.Fatalf("expected no findings, got %+v", findings)
	}
	if len(segs) != 1 {
		t.Fatalf("expected one segment, got %d", len(segs))
	}

	seg := segs[0]
	if seg.Begin.Index != 1 || seg.End.Index != 6 {
		t.Fatalf("expected markers at 1 and 6, got %d and %d", seg.Begin.Index, seg.End.Index)
	}
	if len(seg.Events) != 6 {
		t.Fatalf("expected the full sub-range of 6 events, got %d", len(seg.Events))
	}
	if len(seg.Programs()) != 2 || len(seg.Logos()) != 1 {
		t.Fatalf("expected 2 programs between the markers and 1 logo, got %d and %d", len(seg.Programs()), len(seg.Logos()))
	}
}

func TestBuildOrphans(t *testing.T) {
	tests := []struct {
		name         string
		codes        []string
		wantSegments int
		wantOrphans  []int // indices of orphaned markers
	}{
		{"two adjacent begins", []string{"B", "P", "B", "P", "E"}, 1, []int{0}},
		{"begins only", []string{"B", "B"}, 0, []int{0, 1}},
		{"begin at end of schedule", []string{"P", "B", "P"}, 0, []int{1}},
		{"leading end", []string{"E", "B", "E"}, 1, []int{0}},
		{"end after a pair", []string{"B", "E", "E"}, 1, []int{2}},
		{"two pairs", []string{"B", "E", "P", "B", "P", "E"}, 2, nil},
		{"no markers", []string{"P", "P", "L"}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs, findings := newTestBuilder().Build(schedule(tt.codes...))
			if len(segs) != tt.wantSegments {
				t.Errorf("expected %d segments, got %d", tt.wantSegments, len(segs))
			}
			if len(findings) != len(tt.wantOrphans) {
				t.Fatalf("expected %d orphan findings, got %d: %+v", len(tt.wantOrphans), len(findings), findings)
			}
			for i, idx := range tt.wantOrphans {
				if findings[i].Category != models.CategoryOrphanSegmentBoundary {
					t.Errorf("finding %d: expected orphan category, got %s", i, findings[i].Category)
				}
				subject, _ := findings[i].Subject()
				if subject.Index != idx {
					t.Errorf("finding %d: expected orphan at %d, got %d", i, idx, subject.Index)
				}
			}
			for _, seg := range segs {
				if seg.Begin.Index >= seg.End.Index {
					t.Errorf("segment begin %d not before end %d", seg.Begin.Index, seg.End.Index)
				}
			}
		})
	}
}

func TestBoundariesSkipMetadata(t *testing.T) {
	markers := newTestBuilder().Boundaries(schedule("M", "B", "M", "E"))
	if len(markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(markers))
	}
	if markers[0].Kind != models.BoundaryBegin || markers[1].Kind != models.BoundaryEnd {
		t.Fatalf("unexpected marker kinds: %+v", markers)
	}
}
