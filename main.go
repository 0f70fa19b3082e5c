package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"ptscheck/api"
	"ptscheck/config"
	"ptscheck/handlers"
	"ptscheck/internal/metrics"
	"ptscheck/models"
	"ptscheck/services/duration"
	"ptscheck/services/loader"
	"ptscheck/services/oracle"
	"ptscheck/services/scheduler"
	"ptscheck/services/validation"
	"ptscheck/utils/timecode"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	configFlag := flag.String("config", "", "settings file (default $PTSCHECK_CONFIG or cache/settings.json)")
	file := flag.String("file", "", "schedule export to validate (XML, optionally gzipped)")
	jsonOut := flag.Bool("json", false, "print the full report as JSON")
	dayFlag := flag.String("day", "", "only list segments starting on this day (YYYY-MM-DD)")
	serve := flag.Bool("serve", false, "run the HTTP API")
	portOverride := flag.Int("port", 0, "override server port from config")
	importCSV := flag.String("import-durations", "", "import a content database CSV export into the duration store")
	fetch := flag.Bool("fetch-durations", false, "download the content database export from oracle.csvUrl")
	flag.Parse()

	// Determine config path (flag, env or default)
	configPath := *configFlag
	if configPath == "" {
		configPath = os.Getenv("PTSCHECK_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}
	setupLogging(settings.Log)

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	var day time.Time
	if *dayFlag != "" {
		loc, err := settings.Validation.Location()
		if err != nil {
			log.Fatalf("invalid timezone: %v", err)
		}
		day, err = time.ParseInLocation("2006-01-02", *dayFlag, loc)
		if err != nil {
			log.Fatalf("invalid -day %q, expected YYYY-MM-DD", *dayFlag)
		}
	}

	if *file == "" && !*serve && *importCSV == "" && !*fetch {
		flag.Usage()
		os.Exit(2)
	}

	rules, err := config.LoadRules(settings.Rules.File)
	if err != nil {
		log.Fatalf("failed to load rules: %v", err)
	}

	fs := afero.NewOsFs()
	ctx := context.Background()

	store, durations, err := prepareOracle(ctx, settings.Oracle, fs, *importCSV, *fetch)
	if err != nil {
		log.Fatalf("duration store: %v", err)
	}
	live := duration.NewLive(durations)

	scheduleLoader, err := loader.NewService(fs, settings.Input.Encoding)
	if err != nil {
		log.Fatalf("failed to create loader: %v", err)
	}
	var oracleLookup duration.Oracle
	if store != nil {
		oracleLookup = live
	}
	validator, err := validation.NewService(settings.Validation, rules, oracleLookup)
	if err != nil {
		log.Fatalf("invalid validation settings: %v", err)
	}

	if *serve {
		runServer(settings, cfgManager, scheduleLoader, validator, rules, store, live)
		return
	}
	if store != nil {
		store.Close()
	}
	if *file == "" {
		return
	}

	schedule, err := scheduleLoader.Load(*file)
	if err != nil {
		log.Printf("[main] %v", err)
		os.Exit(1)
	}
	report := validator.Validate(schedule)
	if !day.IsZero() {
		loc, _ := settings.Validation.Location()
		report = report.ForDay(day, loc)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatalf("encode report: %v", err)
		}
		return
	}
	printReport(os.Stdout, report, term.IsTerminal(int(os.Stdout.Fd())))
}

// setupLogging routes log output to stderr, so stdout stays clean for the
// report, and tees it into a rotated file when configured.
func setupLogging(cfg config.LogConfig) {
	var out io.Writer = os.Stderr
	if cfg.File != "" {
		logDir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			}
			out = io.MultiWriter(os.Stderr, fileWriter)
		}
	}
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetLogLoggerLevel(level)
}

// prepareOracle opens the duration store, runs requested imports and returns
// it together with an in-memory snapshot. A missing database path disables
// the oracle and returns a nil store.
func prepareOracle(ctx context.Context, cfg config.OracleSettings, fs afero.Fs, importPath string, fetch bool) (*oracle.Store, duration.Table, error) {
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return nil, nil, nil
	}
	store, err := oracle.Open(ctx, cfg.DatabasePath, fs)
	if err != nil {
		return nil, nil, err
	}

	table, err := loadDurations(ctx, store, cfg, importPath, fetch)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	slog.Info("duration oracle ready", "entries", len(table), "database", cfg.DatabasePath)
	return store, table, nil
}

func loadDurations(ctx context.Context, store *oracle.Store, cfg config.OracleSettings, importPath string, fetch bool) (duration.Table, error) {
	if importPath == "" && cfg.CSVPath != "" {
		if n, err := store.Count(ctx); err == nil && n == 0 {
			importPath = cfg.CSVPath
		}
	}
	if importPath != "" {
		if _, err := store.ImportFile(ctx, importPath); err != nil {
			return nil, err
		}
	}
	if fetch {
		if cfg.CSVURL == "" {
			return nil, fmt.Errorf("oracle.csvUrl is not configured")
		}
		fetchCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.FetchTimeoutSeconds)*time.Second)
		defer cancel()
		if _, err := store.Fetch(fetchCtx, cfg.CSVURL, uint(cfg.MaxRetries)); err != nil {
			return nil, err
		}
	}
	return store.Snapshot(ctx)
}

// newRefresher schedules periodic re-downloads of the content database
// export. It returns nil when no URL or interval is configured.
func newRefresher(cfg config.OracleSettings, store *oracle.Store, live *duration.Live) *scheduler.Service {
	if store == nil || cfg.CSVURL == "" || cfg.RefreshIntervalMinutes <= 0 {
		return nil
	}
	timeout := time.Duration(cfg.FetchTimeoutSeconds) * time.Second
	return scheduler.NewService("content durations", time.Duration(cfg.RefreshIntervalMinutes)*time.Minute,
		func(ctx context.Context) (int, error) {
			fetchCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return store.Refresh(fetchCtx, cfg.CSVURL, uint(cfg.MaxRetries), live)
		})
}

func runServer(settings config.Settings, cfgManager *config.Manager, l *loader.Service, v *validation.Service, rules *config.Rules, store *oracle.Store, live *duration.Live) {
	loc, _ := settings.Validation.Location()
	m := metrics.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresher := newRefresher(settings.Oracle, store, live)
	if refresher != nil {
		if err := refresher.Start(ctx); err != nil {
			log.Fatalf("failed to start duration refresh: %v", err)
		}
	}

	r := mux.NewRouter()
	api.Register(r,
		handlers.NewValidateHandler(l, v, rules, loc, m),
		handlers.NewSettingsHandler(cfgManager),
		handlers.NewDurationsHandler(live, refresher),
		m.Handler(),
	)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	log.Printf("[main] server starting on %s", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  120 * time.Second, // uploads can be large
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("[main] shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if refresher != nil {
		refresher.Stop(shutdownCtx)
	}
	if store != nil {
		store.Close()
	}
	log.Println("[main] shutdown complete")
}

const (
	ansiRed   = "\x1b[31m"
	ansiCyan  = "\x1b[36m"
	ansiReset = "\x1b[0m"
)

func severityLabel(sev models.Severity, color bool) string {
	label := fmt.Sprintf("%-7s", sev)
	if !color {
		return label
	}
	if sev == models.SeverityError {
		return ansiRed + label + ansiReset
	}
	return ansiCyan + label + ansiReset
}

func printReport(w io.Writer, report models.Report, color bool) {
	fmt.Fprintf(w, "%s: %d events, %d segments (run %s)\n\n", report.Source, report.EventCount, report.SegmentCount, report.RunID)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, cat := range models.Categories {
		fmt.Fprintf(tw, "%s\t%d\n", cat, report.Counters[cat])
	}
	fmt.Fprintf(tw, "total\t%d\n", report.Counters.Total())
	tw.Flush()

	if len(report.Findings) > 0 {
		fmt.Fprintln(w)
	}
	for _, f := range report.Findings {
		subject, _ := f.Subject()
		clock := ""
		if f.Clock != "" {
			clock = " [" + string(f.Clock) + "]"
		}
		fmt.Fprintf(w, "%s %-26s%s event %s %s %q: %s\n",
			severityLabel(f.Severity, color), f.Category, clock, subject.EventID,
			subject.Start.Format("2006-01-02 15:04:05.000"), subject.Title, f.Detail)
	}

	for _, seg := range report.Segments {
		fmt.Fprintf(w, "\nsegment %s .. %s\n", seg.Begin.Start.Format("2006-01-02 15:04:05.000"), seg.End.Start.Format("15:04:05.000"))
		for _, as := range report.Associations {
			if as.Program.Index <= seg.Begin.Index || as.Program.Index >= seg.End.Index {
				continue
			}
			fmt.Fprintf(w, "  %-24s %s %-12s %q\n", as.Outcome, timecode.FormatDuration(as.Program.Duration), as.Program.ContentID, as.Program.Title)
			for _, ov := range as.Overlays {
				fmt.Fprintf(w, "    %-6s %-20s %s +%s\n", ov.Kind, ov.Overlay, ov.Start.Format("15:04:05.000"), timecode.FormatDuration(ov.Duration))
			}
		}
	}
}
