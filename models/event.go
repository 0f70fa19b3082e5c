package models

import (
	"fmt"
	"time"
)

// Kind identifies which playout event type a record was exported as.
type Kind int

const (
	KindProgram       Kind = iota // vaEvent
	KindMetadata                  // siEvent
	KindLogoOverlay               // logoEvent
	KindLayoutOverlay             // layoutEvent
)

var kindNames = map[Kind]string{
	KindProgram:       "program",
	KindMetadata:      "metadata",
	KindLogoOverlay:   "logo",
	KindLayoutOverlay: "layout",
}

// String returns the short lowercase name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsOverlay reports whether the kind is one of the graphic overlay kinds.
func (k Kind) IsOverlay() bool {
	return k == KindLogoOverlay || k == KindLayoutOverlay
}

// MarshalText implements encoding.TextMarshaler so kinds serialise by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", string(text))
}

// DisplayedWindow is the audience-facing time window of a metadata event.
// It runs on its own clock, independent of the event's actual start/duration.
type DisplayedWindow struct {
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	End      time.Time     `json:"end"` // derived, see Event.DeriveTimes
}

// Event is a single record of a playout schedule export.
type Event struct {
	Kind        Kind             `json:"kind"`
	Index       int              `json:"index"` // position in the original schedule
	EventID     string           `json:"eventId"`
	ServiceID   string           `json:"serviceId"`
	ProgramID   string           `json:"programId"`
	Title       string           `json:"title"`
	ContentID   string           `json:"contentId,omitempty"`
	Overlay     string           `json:"overlay,omitempty"` // logo/layout name for overlay kinds
	Description string           `json:"description,omitempty"`
	Start       time.Time        `json:"start"`
	Duration    time.Duration    `json:"duration"`
	End         time.Time        `json:"end"` // derived, see DeriveTimes
	Displayed   *DisplayedWindow `json:"displayed,omitempty"`
}

// DeriveTimes computes End (and the displayed window's End) from start and duration.
// End times are never taken from input.
func (e *Event) DeriveTimes() {
	e.End = e.Start.Add(e.Duration)
	if e.Displayed != nil {
		e.Displayed.End = e.Displayed.Start.Add(e.Displayed.Duration)
	}
}

// HasDisplayedWindow reports whether the event carries a displayed window.
func (e Event) HasDisplayedWindow() bool {
	return e.Displayed != nil
}

// Schedule is an ordered, fully loaded playout export.
// Order is broadcast order and must never be re-sorted.
type Schedule struct {
	Source string  `json:"source"`
	Events []Event `json:"events"`
}

// NewSchedule assigns every event its position and derives its end times.
func NewSchedule(source string, events []Event) Schedule {
	for i := range events {
		events[i].Index = i
		events[i].DeriveTimes()
	}
	return Schedule{Source: source, Events: events}
}

// OfKind returns the events of the given kind, preserving order.
func (s Schedule) OfKind(kind Kind) []Event {
	var out []Event
	for _, ev := range s.Events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Without returns the events that are not of the given kind, preserving order.
func (s Schedule) Without(kind Kind) []Event {
	var out []Event
	for _, ev := range s.Events {
		if ev.Kind != kind {
			out = append(out, ev)
		}
	}
	return out
}

// Range returns the events between original indices from and to, inclusive.
func (s Schedule) Range(from, to int) []Event {
	if from < 0 || to >= len(s.Events) || from > to {
		return nil
	}
	out := make([]Event, to-from+1)
	copy(out, s.Events[from:to+1])
	return out
}
