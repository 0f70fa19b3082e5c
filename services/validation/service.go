package validation

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"golang.org/x/crypto/blake2b"

	"ptscheck/config"
	"ptscheck/models"
	"ptscheck/services/continuity"
	"ptscheck/services/duration"
	"ptscheck/services/overlay"
	"ptscheck/services/report"
	"ptscheck/services/segments"
)

// Service runs every validation pass over a loaded schedule and folds the
// results into a report.
type Service struct {
	continuity        *continuity.Validator
	segments          *segments.Builder
	overlays          *overlay.Associator
	durations         *duration.Classifier
	parallel          bool
	programContinuity bool
	now               func() time.Time
}

// NewService wires the passes from settings and rules. oracle may be nil.
func NewService(settings config.ValidationSettings, rules *config.Rules, oracle duration.Oracle) (*Service, error) {
	validator, err := continuity.NewValidator(settings)
	if err != nil {
		return nil, err
	}
	return &Service{
		continuity:        validator,
		segments:          segments.NewBuilder(rules.Segments),
		overlays:          overlay.NewAssociator(settings.OverlayMatch, rules.Overlay),
		durations:         duration.NewClassifier(rules, oracle),
		parallel:          settings.Parallel,
		programContinuity: settings.ProgramContinuity,
		now:               time.Now,
	}, nil
}

type passResults struct {
	continuity   []models.Finding
	orphans      []models.Finding
	programTimes []models.Finding
	overlays     []models.Finding
	durations    []models.Finding

	segments     []models.Segment
	associations []models.Association
}

// Validate never fails: every data problem becomes a finding. Findings are
// merged in a fixed order so parallel and sequential runs are identical.
func (s *Service) Validate(schedule models.Schedule) models.Report {
	var res passResults

	passes := []func(){
		func() { res.continuity = s.continuity.Validate(schedule.OfKind(models.KindMetadata)) },
		func() {
			res.segments, res.orphans = s.segments.Build(schedule)
			if s.programContinuity {
				res.programTimes = s.segmentProgramTimes(res.segments)
			}
			res.associations, res.overlays = s.overlays.AssociateAll(res.segments)
		},
		func() { res.durations = s.durations.Classify(schedule.Events) },
	}
	if s.parallel {
		var wg conc.WaitGroup
		for _, pass := range passes {
			wg.Go(pass)
		}
		wg.Wait()
	} else {
		for _, pass := range passes {
			pass()
		}
	}

	counters, findings := report.Aggregate(res.continuity, res.orphans, res.programTimes, res.overlays, res.durations)
	r := models.Report{
		RunID:        uuid.NewString(),
		Source:       schedule.Source,
		Digest:       Digest(schedule),
		GeneratedAt:  s.now().UTC(),
		EventCount:   len(schedule.Events),
		SegmentCount: len(res.segments),
		Counters:     counters,
		Findings:     findings,
		Segments:     res.segments,
		Associations: res.associations,
	}

	slog.Info("validation complete",
		"run", r.RunID,
		"source", r.Source,
		"events", r.EventCount,
		"segments", r.SegmentCount,
		"findings", counters.Total(),
		"errors", counters.Errors())
	return r
}

// segmentProgramTimes checks that consecutive program events inside each
// segment abut, markers included. Gaps between segments are not checked.
func (s *Service) segmentProgramTimes(segments []models.Segment) []models.Finding {
	var findings []models.Finding
	for _, seg := range segments {
		var programs []models.Event
		for _, ev := range seg.Events {
			if ev.Kind == models.KindProgram {
				programs = append(programs, ev)
			}
		}
		findings = append(findings, s.continuity.Validate(programs)...)
	}
	return findings
}

// Digest returns a blake2b-256 fingerprint of the schedule's events, so two
// reports can be matched to the same input.
func Digest(schedule models.Schedule) string {
	b, err := json.Marshal(schedule.Events)
	if err != nil {
		// events hold only strings, times and durations
		return ""
	}
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}
