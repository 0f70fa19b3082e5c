package models

// Category names one kind of validation finding.
type Category string

const (
	CategoryContinuityGap            Category = "continuity_gap"
	CategoryContinuityOverlap        Category = "continuity_overlap"
	CategoryUnderMinimumDuration     Category = "under_minimum_duration"
	CategoryOrphanSegmentBoundary    Category = "orphan_segment_boundary"
	CategoryNoOverlayFound           Category = "no_overlay_found"
	CategoryMultipleOverlaysFound    Category = "multiple_overlays_found"
	CategoryUnexpectedOverlayFound   Category = "unexpected_overlay_found"
	CategoryOverlayTimeMismatch      Category = "overlay_time_mismatch"
	CategoryLengthError              Category = "length_error"
	CategoryExternalDurationMismatch Category = "external_duration_mismatch"
	CategoryCommercialLength         Category = "commercial_length_error"
	CategoryBufferLoop               Category = "buffer_loop_error"
	CategoryTrailer                  Category = "trailer"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryContinuityGap,
	CategoryContinuityOverlap,
	CategoryUnderMinimumDuration,
	CategoryOrphanSegmentBoundary,
	CategoryNoOverlayFound,
	CategoryMultipleOverlaysFound,
	CategoryUnexpectedOverlayFound,
	CategoryOverlayTimeMismatch,
	CategoryLengthError,
	CategoryExternalDurationMismatch,
	CategoryCommercialLength,
	CategoryBufferLoop,
	CategoryTrailer,
}

// Severity grades a finding.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Clock distinguishes the two independent timelines of a continuity check.
type Clock string

const (
	ClockActual    Clock = "actual"
	ClockDisplayed Clock = "displayed"
)

// Finding is a single validation result. Findings are values; they reference
// copies of the events involved and never modify the schedule.
type Finding struct {
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Clock    Clock    `json:"clock,omitempty"`
	Events   []Event  `json:"events,omitempty"` // zero to two events
	Detail   string   `json:"detail,omitempty"`
}

// NewFinding builds a finding referencing up to two events.
func NewFinding(category Category, severity Severity, detail string, events ...Event) Finding {
	if len(events) > 2 {
		events = events[:2]
	}
	refs := make([]Event, len(events))
	copy(refs, events)
	return Finding{
		Category: category,
		Severity: severity,
		Events:   refs,
		Detail:   detail,
	}
}

// Subject returns the event a finding is reported on: the last referenced event.
func (f Finding) Subject() (Event, bool) {
	if len(f.Events) == 0 {
		return Event{}, false
	}
	return f.Events[len(f.Events)-1], true
}
