package models

// BoundaryKind marks a structural segment marker.
type BoundaryKind string

const (
	BoundaryBegin BoundaryKind = "begin"
	BoundaryEnd   BoundaryKind = "end"
)

// Boundary is a marker event found in the non-metadata event stream.
type Boundary struct {
	Kind  BoundaryKind `json:"kind"`
	Event Event        `json:"event"`
}

// Segment is a contiguous run of the schedule delimited by one Begin marker
// and the End marker directly paired with it, markers included.
type Segment struct {
	Begin  Event   `json:"begin"`
	End    Event   `json:"end"`
	Events []Event `json:"events"`
}

// Programs returns the program events between the markers in order. The
// Begin and End markers themselves are not included.
func (s Segment) Programs() []Event {
	var out []Event
	for _, ev := range s.ofKind(KindProgram) {
		if ev.Index == s.Begin.Index || ev.Index == s.End.Index {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Logos returns the logo overlay events of the segment in order.
func (s Segment) Logos() []Event { return s.ofKind(KindLogoOverlay) }

// Layouts returns the layout overlay events of the segment in order.
func (s Segment) Layouts() []Event { return s.ofKind(KindLayoutOverlay) }

func (s Segment) ofKind(kind Kind) []Event {
	var out []Event
	for _, ev := range s.Events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// OverlayOutcome is the classification tag of one program event's overlays.
type OverlayOutcome string

const (
	OverlayOK              OverlayOutcome = "ok"
	OverlayExempt          OverlayOutcome = "exempt"
	OverlayMissingAllowed  OverlayOutcome = "missing_allowed"
	OverlayMultipleAllowed OverlayOutcome = "multiple_allowed"
	OverlayNone            OverlayOutcome = "no_overlay_found"
	OverlayMultiple        OverlayOutcome = "multiple_overlays_found"
	OverlayUnexpected      OverlayOutcome = "unexpected_overlay_found"
	OverlayTimeMismatch    OverlayOutcome = "overlay_time_mismatch"
)

// IsError reports whether the outcome produces a finding.
func (o OverlayOutcome) IsError() bool {
	switch o {
	case OverlayNone, OverlayMultiple, OverlayUnexpected, OverlayTimeMismatch:
		return true
	}
	return false
}

// Association ties a program event to its overlay candidates.
type Association struct {
	Program  Event          `json:"program"`
	Overlays []Event        `json:"overlays,omitempty"`
	Outcome  OverlayOutcome `json:"outcome"`
}
