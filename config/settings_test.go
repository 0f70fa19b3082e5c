package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	m := NewManager(path)

	s, err := m.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Validation.WindowStart != "08:00" || s.Server.Port != 7788 {
		t.Fatalf("expected defaults, got %+v", s)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected settings file to be written: %v", err)
	}
}

func TestLoadBackfillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	partial := `{"validation":{"windowStart":"06:00","overlayMatch":"timeWindow"},"server":{"port":9000}}`
	if err := os.WriteFile(path, []byte(partial), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	s, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"kept window start", s.Validation.WindowStart, "06:00"},
		{"backfilled window end", s.Validation.WindowEnd, "20:00"},
		{"backfilled minimum", s.Validation.MinimumDurationSeconds, 300},
		{"normalised match mode", s.Validation.OverlayMatch, OverlayMatchTimeWindow},
		{"kept port", s.Server.Port, 9000},
		{"backfilled database", s.Oracle.DatabasePath, "cache/durations.db"},
		{"backfilled log level", s.Log.Level, "info"},
		{"default refresh interval", s.Oracle.RefreshIntervalMinutes, 1440},
		{"default program continuity", s.Validation.ProgramContinuity, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, tt.got)
			}
		})
	}
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	doc := `{"validation":{"minimumDurationSeconds":0,"programContinuity":false,"parallel":false},"oracle":{"refreshIntervalMinutes":0}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	s, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Validation.MinimumDurationSeconds != 0 || s.Validation.MinimumDuration() != 0 {
		t.Errorf("expected filler rule off, got %d seconds", s.Validation.MinimumDurationSeconds)
	}
	if s.Validation.ProgramContinuity || s.Validation.Parallel {
		t.Errorf("expected explicit false flags to stay, got %+v", s.Validation)
	}
	if s.Oracle.RefreshIntervalMinutes != 0 {
		t.Errorf("expected refresh off, got %d", s.Oracle.RefreshIntervalMinutes)
	}
	if s.Validation.WindowStart != "08:00" {
		t.Errorf("expected absent window start to keep its default, got %q", s.Validation.WindowStart)
	}
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestManagerWithoutPath(t *testing.T) {
	m := NewManager("")
	if _, err := m.Load(); !errors.Is(err, ErrPathNotSet) {
		t.Fatalf("expected ErrPathNotSet, got %v", err)
	}
	if err := m.Save(DefaultSettings()); !errors.Is(err, ErrPathNotSet) {
		t.Fatalf("expected ErrPathNotSet, got %v", err)
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := NewManager(path).Save(DefaultSettings()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected temp file to be renamed away, got %v", err)
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"08:00", 8 * time.Hour, false},
		{"20:30", 20*time.Hour + 30*time.Minute, false},
		{" 00:00 ", 0, false},
		{"24:00", 0, true},
		{"8am", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("expected %s, got %s (%v)", tt.want, got, err)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	loc, err := ValidationSettings{}.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %v %v", loc, err)
	}
	if _, err := (ValidationSettings{Timezone: "Nowhere/Special"}).Location(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}
