package overlay

import (
	"fmt"

	"ptscheck/config"
	"ptscheck/models"
	"ptscheck/utils/textnorm"
)

// Associator matches overlay events to the program events of a segment and
// classifies the result.
type Associator struct {
	mode            config.OverlayMatchMode
	exempt          config.ExemptionRules
	exemptIDs       map[string]struct{}
	multipleAllowed map[string]struct{}
	missingAllowed  map[string]struct{}
}

// NewAssociator creates an associator from the match mode and the overlay rules.
func NewAssociator(mode config.OverlayMatchMode, rules config.OverlayRules) *Associator {
	if mode == "" {
		mode = config.OverlayMatchProgramID
	}
	return &Associator{
		mode:            mode,
		exempt:          rules.Exempt,
		exemptIDs:       toSet(rules.Exempt.ContentIDs),
		multipleAllowed: toSet(rules.MultiOverlayAllowed),
		missingAllowed:  toSet(rules.MissingOverlayAllowed),
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Associate classifies every program event of the segment.
func (a *Associator) Associate(seg models.Segment) ([]models.Association, []models.Finding) {
	programs := seg.Programs()
	layouts := seg.Layouts()
	logos := seg.Logos()

	associations := make([]models.Association, 0, len(programs))
	var findings []models.Finding
	for _, program := range programs {
		candidates := append(a.candidates(program, layouts), a.candidates(program, logos)...)
		outcome, detail := a.classify(program, candidates)

		associations = append(associations, models.Association{
			Program:  program,
			Overlays: candidates,
			Outcome:  outcome,
		})
		if outcome.IsError() {
			refs := []models.Event{program}
			if len(candidates) > 0 {
				refs = []models.Event{candidates[0], program}
			}
			findings = append(findings, models.NewFinding(models.Category(outcome), models.SeverityError, detail, refs...))
		}
	}
	return associations, findings
}

// AssociateAll runs Associate over every segment, preserving segment order.
func (a *Associator) AssociateAll(segments []models.Segment) ([]models.Association, []models.Finding) {
	var (
		associations []models.Association
		findings     []models.Finding
	)
	for _, seg := range segments {
		as, fs := a.Associate(seg)
		associations = append(associations, as...)
		findings = append(findings, fs...)
	}
	return associations, findings
}

func (a *Associator) candidates(program models.Event, overlays []models.Event) []models.Event {
	var out []models.Event
	for _, ov := range overlays {
		switch a.mode {
		case config.OverlayMatchTimeWindow:
			if !ov.Start.Before(program.Start) && !ov.Start.After(program.End) {
				out = append(out, ov)
			}
		default:
			if ov.ProgramID == program.ProgramID {
				out = append(out, ov)
			}
		}
	}
	return out
}

func (a *Associator) classify(program models.Event, candidates []models.Event) (models.OverlayOutcome, string) {
	if a.isExempt(program) {
		if len(candidates) > 0 {
			return models.OverlayUnexpected, fmt.Sprintf("exempt program %q carries %d overlay(s)", program.Title, len(candidates))
		}
		return models.OverlayExempt, ""
	}

	switch len(candidates) {
	case 0:
		if _, ok := a.missingAllowed[program.ContentID]; ok {
			return models.OverlayMissingAllowed, ""
		}
		return models.OverlayNone, fmt.Sprintf("program %q has no overlay", program.Title)
	case 1:
		// only layouts have to line up with the program; a single logo is accepted as is
		ov := candidates[0]
		if ov.Kind == models.KindLayoutOverlay && (!ov.Start.Equal(program.Start) || !ov.End.Equal(program.End)) {
			return models.OverlayTimeMismatch, fmt.Sprintf("layout %q runs %s-%s, program runs %s-%s",
				ov.Overlay, ov.Start.Format("15:04:05.000"), ov.End.Format("15:04:05.000"),
				program.Start.Format("15:04:05.000"), program.End.Format("15:04:05.000"))
		}
		return models.OverlayOK, ""
	default:
		if _, ok := a.multipleAllowed[program.ContentID]; ok {
			return models.OverlayMultipleAllowed, ""
		}
		return models.OverlayMultiple, fmt.Sprintf("program %q has %d overlays", program.Title, len(candidates))
	}
}

func (a *Associator) isExempt(program models.Event) bool {
	if _, ok := a.exemptIDs[program.ContentID]; ok {
		return true
	}
	if textnorm.ContainsAny(program.Title, a.exempt.TitleSubstrings) {
		return true
	}
	if textnorm.HasAnyPrefix(program.Title, a.exempt.TitlePrefixes) {
		return true
	}
	if a.exempt.NumericTitles && textnorm.NumericFirstWord(program.Title) {
		return true
	}
	return a.exempt.MaxDuration > 0 && program.Duration <= a.exempt.MaxDuration
}
