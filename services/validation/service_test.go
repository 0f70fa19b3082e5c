package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptscheck/config"
	"ptscheck/models"
	"ptscheck/services/duration"
)

var base = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

func testRules() *config.Rules {
	return &config.Rules{
		Segments: config.SegmentRules{Begin: []string{"BEGIN"}, End: []string{"END"}},
		Overlay: config.OverlayRules{
			Exempt: config.ExemptionRules{TitleSubstrings: []string{"trailer"}},
		},
		Durations: config.DurationRules{
			TrailerMax: time.Minute,
			Classes: []config.DurationClass{
				{Name: "pause", ContentIDs: []string{"PAUSE"}, Min: 5 * time.Minute, Max: 15 * time.Minute},
			},
		},
	}
}

func testSettings(parallel bool) config.ValidationSettings {
	settings := config.DefaultSettings().Validation
	settings.Timezone = "UTC"
	settings.Parallel = parallel
	return settings
}

func newTestService(t *testing.T, parallel bool, oracle duration.Oracle) *Service {
	t.Helper()
	s, err := NewService(testSettings(parallel), testRules(), oracle)
	require.NoError(t, err)
	return s
}

type eventDef struct {
	kind      models.Kind
	programID string
	contentID string
	title     string
	offset    time.Duration
	duration  time.Duration
}

func buildSchedule(defs ...eventDef) models.Schedule {
	events := make([]models.Event, len(defs))
	for i, d := range defs {
		events[i] = models.Event{
			Kind:      d.kind,
			EventID:   string(rune('a' + i)),
			ProgramID: d.programID,
			ContentID: d.contentID,
			Title:     d.title,
			Start:     base.Add(d.offset),
			Duration:  d.duration,
		}
		if d.kind == models.KindMetadata {
			events[i].Displayed = &models.DisplayedWindow{Start: base.Add(d.offset), Duration: d.duration}
		}
	}
	return models.NewSchedule("test.xml", events)
}

// mixedSchedule carries one finding of most categories.
func mixedSchedule() models.Schedule {
	return buildSchedule(
		eventDef{kind: models.KindProgram, programID: "m", contentID: "BEGIN", offset: 0, duration: 0},
		eventDef{kind: models.KindProgram, programID: "p1", contentID: "SHOW", title: "Show", offset: 0, duration: 30 * time.Minute},
		eventDef{kind: models.KindLayoutOverlay, programID: "p1", offset: 0, duration: 29 * time.Minute},
		eventDef{kind: models.KindMetadata, programID: "p1", title: "Show", offset: 0, duration: 30 * time.Minute},
		eventDef{kind: models.KindProgram, programID: "p2", contentID: "PAUSE", title: "Pause", offset: 30 * time.Minute, duration: 16 * time.Minute},
		eventDef{kind: models.KindMetadata, programID: "p2", title: "Pause", offset: 31 * time.Minute, duration: 16 * time.Minute},
		eventDef{kind: models.KindProgram, programID: "p3", contentID: "PROMO", title: "Movie Trailer", offset: 46 * time.Minute, duration: time.Minute},
		eventDef{kind: models.KindProgram, programID: "m", contentID: "END", offset: 47 * time.Minute, duration: 0},
		eventDef{kind: models.KindProgram, programID: "m", contentID: "BEGIN", offset: 47 * time.Minute, duration: 0},
	)
}

func TestValidateMixedSchedule(t *testing.T) {
	oracle := duration.Table{"SHOW": 25 * time.Minute}
	r := newTestService(t, false, oracle).Validate(mixedSchedule())

	assert.Equal(t, 9, r.EventCount)
	assert.Equal(t, 1, r.SegmentCount)
	assert.NotEmpty(t, r.RunID)
	assert.Len(t, r.Digest, 64)

	want := map[models.Category]int{
		models.CategoryContinuityGap:            2, // metadata p1 -> p2 on both clocks
		models.CategoryOrphanSegmentBoundary:    1, // trailing begin
		models.CategoryOverlayTimeMismatch:      1, // p1 layout one minute short
		models.CategoryNoOverlayFound:           1, // p2 pause
		models.CategoryLengthError:              1, // pause 16m
		models.CategoryTrailer:                  1, // promo
		models.CategoryExternalDurationMismatch: 1, // show longer than the database
	}
	for _, cat := range models.Categories {
		assert.Equal(t, want[cat], r.Counters[cat], "category %s", cat)
	}
	assert.Equal(t, r.Counters.Total(), len(r.Findings))

	// fixed merge order: continuity, segments, segment program times, overlays, durations
	order := []models.Category{
		models.CategoryContinuityGap,
		models.CategoryContinuityGap,
		models.CategoryOrphanSegmentBoundary,
		models.CategoryOverlayTimeMismatch,
		models.CategoryNoOverlayFound,
		models.CategoryExternalDurationMismatch,
		models.CategoryLengthError,
		models.CategoryTrailer,
	}
	got := make([]models.Category, len(r.Findings))
	for i, f := range r.Findings {
		got[i] = f.Category
	}
	assert.Equal(t, order, got)
}

func TestValidateIsIdempotent(t *testing.T) {
	s := newTestService(t, false, nil)
	schedule := mixedSchedule()

	first := s.Validate(schedule)
	second := s.Validate(schedule)

	assert.Equal(t, first.Counters, second.Counters)
	assert.Equal(t, first.Findings, second.Findings)
	assert.Equal(t, first.Digest, second.Digest)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestParallelMatchesSequential(t *testing.T) {
	schedule := mixedSchedule()
	oracle := duration.Table{"SHOW": 25 * time.Minute}

	sequential := newTestService(t, false, oracle).Validate(schedule)
	for i := 0; i < 20; i++ {
		parallel := newTestService(t, true, oracle).Validate(schedule)
		require.Equal(t, sequential.Counters, parallel.Counters)
		require.Equal(t, sequential.Findings, parallel.Findings)
		require.Equal(t, sequential.Associations, parallel.Associations)
	}
}

func TestSegmentProgramTimes(t *testing.T) {
	schedule := buildSchedule(
		eventDef{kind: models.KindProgram, contentID: "BEGIN", offset: 0, duration: 0},
		eventDef{kind: models.KindProgram, contentID: "A", title: "A", offset: 0, duration: 10 * time.Minute},
		eventDef{kind: models.KindProgram, contentID: "B", title: "B", offset: 9 * time.Minute, duration: 10 * time.Minute},
		eventDef{kind: models.KindProgram, contentID: "END", offset: 19 * time.Minute, duration: 0},
		// gap between the two segments
		eventDef{kind: models.KindProgram, contentID: "NEWS", title: "News", offset: 25 * time.Minute, duration: 5 * time.Minute},
		eventDef{kind: models.KindProgram, contentID: "BEGIN", offset: 40 * time.Minute, duration: 0},
		eventDef{kind: models.KindProgram, contentID: "C", title: "C", offset: 40 * time.Minute, duration: 10 * time.Minute},
		eventDef{kind: models.KindProgram, contentID: "END", offset: 51 * time.Minute, duration: 0},
	)

	r := newTestService(t, false, nil).Validate(schedule)
	require.Equal(t, 2, r.SegmentCount)
	assert.Equal(t, 1, r.Counters[models.CategoryContinuityOverlap], "A overlaps B inside the first segment")
	assert.Equal(t, 1, r.Counters[models.CategoryContinuityGap], "C ends before the closing marker")

	var subjects []string
	for _, f := range r.Findings {
		if f.Category == models.CategoryContinuityGap || f.Category == models.CategoryContinuityOverlap {
			subject, _ := f.Subject()
			subjects = append(subjects, subject.ContentID)
		}
	}
	assert.Equal(t, []string{"B", "END"}, subjects)

	settings := testSettings(false)
	settings.ProgramContinuity = false
	s, err := NewService(settings, testRules(), nil)
	require.NoError(t, err)
	r = s.Validate(schedule)
	assert.Zero(t, r.Counters[models.CategoryContinuityOverlap])
	assert.Zero(t, r.Counters[models.CategoryContinuityGap])
}

func TestDigestTracksContent(t *testing.T) {
	a := mixedSchedule()
	b := mixedSchedule()
	assert.Equal(t, Digest(a), Digest(b))

	b.Events[1].Title = "Other"
	assert.NotEqual(t, Digest(a), Digest(b))
}

func TestNewServiceRejectsBadTimezone(t *testing.T) {
	settings := testSettings(false)
	settings.Timezone = "Mars/Olympus"
	_, err := NewService(settings, testRules(), nil)
	assert.Error(t, err)
}
