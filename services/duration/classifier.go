package duration

import (
	"fmt"
	"sync/atomic"
	"time"

	"ptscheck/config"
	"ptscheck/models"
	"ptscheck/utils/textnorm"
)

// Oracle answers reference durations for content ids. A missing entry is a
// valid answer and suppresses the external check.
type Oracle interface {
	ReferenceDuration(contentID string) (time.Duration, bool)
}

// Classifier flags program events whose duration falls outside the
// configured class range, misses a commercial's fixed length, is a buffer
// loop at its forbidden length or exceeds the oracle's reference duration.
type Classifier struct {
	classes     map[string]config.DurationClass
	markers     map[string]struct{}
	trailerMax  time.Duration
	commercials []config.CommercialRule
	bufferLoops config.BufferLoopRules
	oracle      Oracle
}

// NewClassifier builds a classifier from the rules table. oracle may be nil.
func NewClassifier(rules *config.Rules, oracle Oracle) *Classifier {
	c := &Classifier{
		classes:     make(map[string]config.DurationClass),
		markers:     make(map[string]struct{}),
		trailerMax:  rules.Durations.TrailerMax,
		commercials: rules.Durations.Commercials,
		bufferLoops: rules.Durations.BufferLoops,
		oracle:      oracle,
	}
	for _, class := range rules.Durations.Classes {
		for _, id := range class.ContentIDs {
			c.classes[id] = class
		}
	}
	for _, id := range rules.Segments.Begin {
		c.markers[id] = struct{}{}
	}
	for _, id := range rules.Segments.End {
		c.markers[id] = struct{}{}
	}
	return c
}

// Classify checks every program event in order. Segment markers are skipped.
func (c *Classifier) Classify(events []models.Event) []models.Finding {
	var findings []models.Finding
	for _, ev := range events {
		if ev.Kind != models.KindProgram {
			continue
		}
		if _, marker := c.markers[ev.ContentID]; marker {
			continue
		}
		loop := c.isBufferLoop(ev)
		if f, ok := c.classify(ev, loop); ok {
			findings = append(findings, f)
		}
		findings = append(findings, c.checkCommercials(ev)...)
		if loop && ev.Duration == c.bufferLoops.ForbiddenDuration {
			findings = append(findings, models.NewFinding(models.CategoryBufferLoop, models.SeverityError,
				fmt.Sprintf("buffer loop %q runs its raw length %s", ev.Title, ev.Duration), ev))
		}
		if f, ok := c.compareReference(ev); ok {
			findings = append(findings, f)
		}
	}
	return findings
}

// classify applies the class table. Unclassified short programs are
// trailers, except buffer loops.
func (c *Classifier) classify(ev models.Event, loop bool) (models.Finding, bool) {
	class, ok := c.classes[ev.ContentID]
	if !ok {
		if !loop && c.trailerMax > 0 && ev.Duration <= c.trailerMax {
			return models.NewFinding(models.CategoryTrailer, models.SeverityInfo,
				fmt.Sprintf("%q runs %s", ev.Title, ev.Duration), ev), true
		}
		return models.Finding{}, false
	}

	if (class.Min > 0 && ev.Duration < class.Min) || (class.Max > 0 && ev.Duration > class.Max) {
		return models.NewFinding(models.CategoryLengthError, models.SeverityError,
			fmt.Sprintf("%s %q runs %s, expected %s", class.Name, ev.Title, ev.Duration, bounds(class)), ev), true
	}
	return models.Finding{}, false
}

func (c *Classifier) checkCommercials(ev models.Event) []models.Finding {
	var findings []models.Finding
	for _, rule := range c.commercials {
		if !textnorm.ContainsAny(ev.Title, []string{rule.TitleContains}) {
			continue
		}
		if ev.Duration.Round(time.Millisecond) != rule.Duration {
			findings = append(findings, models.NewFinding(models.CategoryCommercialLength, models.SeverityError,
				fmt.Sprintf("commercial %q runs %s, expected %s", ev.Title, ev.Duration, rule.Duration), ev))
		}
	}
	return findings
}

func (c *Classifier) isBufferLoop(ev models.Event) bool {
	if len(c.bufferLoops.TitleSubstrings) == 0 || !textnorm.NumericFirstWord(ev.Title) {
		return false
	}
	return textnorm.ContainsAny(ev.Title, c.bufferLoops.TitleSubstrings)
}

func (c *Classifier) compareReference(ev models.Event) (models.Finding, bool) {
	if c.oracle == nil || ev.ContentID == "" {
		return models.Finding{}, false
	}
	ref, ok := c.oracle.ReferenceDuration(ev.ContentID)
	if !ok || ev.Duration <= ref {
		return models.Finding{}, false
	}
	return models.NewFinding(models.CategoryExternalDurationMismatch, models.SeverityError,
		fmt.Sprintf("%q runs %s, content database has %s", ev.Title, ev.Duration, ref), ev), true
}

func bounds(class config.DurationClass) string {
	switch {
	case class.Min > 0 && class.Max > 0:
		return fmt.Sprintf("%s-%s", class.Min, class.Max)
	case class.Max > 0:
		return fmt.Sprintf("at most %s", class.Max)
	default:
		return fmt.Sprintf("at least %s", class.Min)
	}
}

// Table is an in-memory Oracle.
type Table map[string]time.Duration

// ReferenceDuration implements Oracle.
func (t Table) ReferenceDuration(contentID string) (time.Duration, bool) {
	d, ok := t[contentID]
	return d, ok
}

// Live is an Oracle whose table can be replaced while the server runs.
type Live struct {
	table atomic.Pointer[Table]
}

// NewLive wraps an initial table, which may be nil.
func NewLive(t Table) *Live {
	l := &Live{}
	l.Replace(t)
	return l
}

// Replace swaps in a new table for subsequent lookups.
func (l *Live) Replace(t Table) {
	l.table.Store(&t)
}

// Len returns the number of entries in the current table.
func (l *Live) Len() int {
	if t := l.table.Load(); t != nil {
		return len(*t)
	}
	return 0
}

// ReferenceDuration implements Oracle.
func (l *Live) ReferenceDuration(contentID string) (time.Duration, bool) {
	t := l.table.Load()
	if t == nil {
		return 0, false
	}
	return t.ReferenceDuration(contentID)
}
