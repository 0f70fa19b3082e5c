package continuity

import (
	"fmt"
	"time"

	"ptscheck/config"
	"ptscheck/models"
)

// Validator checks consecutive same-kind events for gaps and overlaps on
// the actual clock and, where present, the displayed clock.
type Validator struct {
	minimum     time.Duration
	windowStart time.Duration // offset from local midnight
	windowEnd   time.Duration
	loc         *time.Location
}

// NewValidator builds a validator from the validation settings.
func NewValidator(settings config.ValidationSettings) (*Validator, error) {
	loc, err := settings.Location()
	if err != nil {
		return nil, err
	}
	start, err := config.ParseClock(settings.WindowStart)
	if err != nil {
		return nil, fmt.Errorf("window start: %w", err)
	}
	end, err := config.ParseClock(settings.WindowEnd)
	if err != nil {
		return nil, fmt.Errorf("window end: %w", err)
	}
	return &Validator{
		minimum:     settings.MinimumDuration(),
		windowStart: start,
		windowEnd:   end,
		loc:         loc,
	}, nil
}

// Validate scans the events pairwise in order. The events are expected to be
// of one kind; callers filter the schedule first.
func (v *Validator) Validate(events []models.Event) []models.Finding {
	var findings []models.Finding
	for i := 0; i+1 < len(events); i++ {
		findings = append(findings, v.checkPair(events[i], events[i+1])...)
	}
	return findings
}

func (v *Validator) checkPair(prev, next models.Event) []models.Finding {
	if v.isShortFiller(prev) {
		if v.inWindow(prev.Start) {
			return nil
		}
		local := prev.Start.In(v.loc).Format("15:04:05")
		return []models.Finding{models.NewFinding(
			models.CategoryUnderMinimumDuration,
			models.SeverityWarning,
			fmt.Sprintf("%s event shorter than %s starts at %s, outside the daily window", prev.Kind, v.minimum, local),
			prev, next,
		)}
	}

	var findings []models.Finding
	if f, ok := compare(models.ClockActual, prev.End, next.Start, prev, next); ok {
		findings = append(findings, f)
	}
	if prev.HasDisplayedWindow() && next.HasDisplayedWindow() {
		if f, ok := compare(models.ClockDisplayed, prev.Displayed.End, next.Displayed.Start, prev, next); ok {
			findings = append(findings, f)
		}
	}
	return findings
}

// isShortFiller reports whether both the actual and the displayed duration
// are below the minimum. An event without a displayed window is never a filler.
func (v *Validator) isShortFiller(ev models.Event) bool {
	if v.minimum <= 0 || !ev.HasDisplayedWindow() {
		return false
	}
	return ev.Duration < v.minimum && ev.Displayed.Duration < v.minimum
}

// inWindow reports whether t's local time of day lies in [windowStart, windowEnd).
// A window whose end is before its start wraps around midnight.
func (v *Validator) inWindow(t time.Time) bool {
	h, m, s := t.In(v.loc).Clock()
	offset := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
	if v.windowStart <= v.windowEnd {
		return offset >= v.windowStart && offset < v.windowEnd
	}
	return offset >= v.windowStart || offset < v.windowEnd
}

func compare(clock models.Clock, actual, expected time.Time, prev, next models.Event) (models.Finding, bool) {
	var category models.Category
	switch {
	case actual.Before(expected):
		category = models.CategoryContinuityGap
	case actual.After(expected):
		category = models.CategoryContinuityOverlap
	default:
		return models.Finding{}, false
	}
	f := models.NewFinding(category, models.SeverityError,
		fmt.Sprintf("%s clock: previous ends %s, next starts %s (%s)",
			clock, actual.UTC().Format(time.RFC3339Nano), expected.UTC().Format(time.RFC3339Nano), expected.Sub(actual)),
		prev, next)
	f.Clock = clock
	return f, true
}
