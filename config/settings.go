package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrPathNotSet is returned when a Manager has no settings path.
var ErrPathNotSet = errors.New("config path not set")

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Input      InputSettings      `json:"input"`
	Rules      RulesSettings      `json:"rules"`
	Validation ValidationSettings `json:"validation"`
	Oracle     OracleSettings     `json:"oracle"`
	Server     ServerSettings     `json:"server"`
	Log        LogConfig          `json:"log"`
}

// InputSettings controls how schedule exports are read.
type InputSettings struct {
	Encoding string `json:"encoding"` // charset override, empty = honour the XML declaration
}

// RulesSettings points at the YAML rules table.
type RulesSettings struct {
	File string `json:"file"` // empty = embedded defaults
}

// OverlayMatchMode selects how overlay candidates are found for a program event.
type OverlayMatchMode string

const (
	OverlayMatchProgramID  OverlayMatchMode = "programId"
	OverlayMatchTimeWindow OverlayMatchMode = "timeWindow"
)

// ValidationSettings are the fixed rule parameters of the engine.
type ValidationSettings struct {
	MinimumDurationSeconds int              `json:"minimumDurationSeconds"`
	WindowStart            string           `json:"windowStart"` // HH:MM, local to Timezone
	WindowEnd              string           `json:"windowEnd"`   // HH:MM, local to Timezone
	Timezone               string           `json:"timezone"`
	OverlayMatch           OverlayMatchMode `json:"overlayMatch"`
	Parallel               bool             `json:"parallel"`
	ProgramContinuity      bool             `json:"programContinuity"` // consecutive program events inside each segment must abut
}

// OracleSettings configures the reference-duration database.
type OracleSettings struct {
	DatabasePath           string `json:"databasePath"`
	CSVPath                string `json:"csvPath"`
	CSVURL                 string `json:"csvUrl"`
	FetchTimeoutSeconds    int    `json:"fetchTimeoutSeconds"`
	MaxRetries             int    `json:"maxRetries"`
	RefreshIntervalMinutes int    `json:"refreshIntervalMinutes"` // re-download csvUrl while serving; 0 disables
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// MinimumDuration returns the configured minimum as a duration.
func (v ValidationSettings) MinimumDuration() time.Duration {
	return time.Duration(v.MinimumDurationSeconds) * time.Second
}

// Location resolves the configured timezone, falling back to UTC.
func (v ValidationSettings) Location() (*time.Location, error) {
	if strings.TrimSpace(v.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(v.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", v.Timezone, err)
	}
	return loc, nil
}

// ParseClock parses an HH:MM time of day into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Input: InputSettings{Encoding: ""},
		Rules: RulesSettings{File: ""},
		Validation: ValidationSettings{
			MinimumDurationSeconds: 5 * 60,
			WindowStart:            "08:00",
			WindowEnd:              "20:00",
			Timezone:               "Europe/Berlin",
			OverlayMatch:           OverlayMatchProgramID,
			Parallel:               true,
			ProgramContinuity:      true,
		},
		Oracle: OracleSettings{
			DatabasePath:           "cache/durations.db",
			FetchTimeoutSeconds:    60,
			MaxRetries:             3,
			RefreshIntervalMinutes: 1440,
		},
		Server: ServerSettings{Host: "0.0.0.0", Port: 7788},
		Log: LogConfig{
			File:       "cache/logs/ptscheck.log",
			Level:      "info",
			MaxSize:    20, // 20 MB per file
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// Path returns the settings file location.
func (m *Manager) Path() string {
	return m.path
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads the settings file from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, ErrPathNotSet
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	// fields absent from the file keep their defaults; explicit zeros stay
	s := DefaultSettings()
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings %s: %w", m.path, err)
	}

	backfill(&s)
	return s, nil
}

// backfill fills zero values left by older or hand-written settings files.
func backfill(s *Settings) {
	defaults := DefaultSettings()

	// Backfill Validation settings
	if s.Validation.MinimumDurationSeconds < 0 {
		s.Validation.MinimumDurationSeconds = defaults.Validation.MinimumDurationSeconds
	}
	if strings.TrimSpace(s.Validation.WindowStart) == "" {
		s.Validation.WindowStart = defaults.Validation.WindowStart
	}
	if strings.TrimSpace(s.Validation.WindowEnd) == "" {
		s.Validation.WindowEnd = defaults.Validation.WindowEnd
	}
	switch strings.ToLower(string(s.Validation.OverlayMatch)) {
	case "timewindow", "time_window":
		s.Validation.OverlayMatch = OverlayMatchTimeWindow
	default:
		s.Validation.OverlayMatch = OverlayMatchProgramID
	}

	// Backfill Oracle settings
	if strings.TrimSpace(s.Oracle.DatabasePath) == "" {
		s.Oracle.DatabasePath = defaults.Oracle.DatabasePath
	}
	if s.Oracle.FetchTimeoutSeconds <= 0 {
		s.Oracle.FetchTimeoutSeconds = defaults.Oracle.FetchTimeoutSeconds
	}
	if s.Oracle.MaxRetries <= 0 {
		s.Oracle.MaxRetries = defaults.Oracle.MaxRetries
	}
	if s.Oracle.RefreshIntervalMinutes < 0 {
		s.Oracle.RefreshIntervalMinutes = 0
	}

	if s.Server.Port == 0 {
		s.Server.Port = defaults.Server.Port
	}

	// Backfill Log settings
	if strings.TrimSpace(s.Log.Level) == "" {
		s.Log.Level = defaults.Log.Level
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = defaults.Log.MaxSize
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = defaults.Log.MaxBackups
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = defaults.Log.MaxAge
	}
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return ErrPathNotSet
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
