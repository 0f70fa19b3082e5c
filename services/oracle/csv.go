package oracle

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"ptscheck/utils/timecode"
)

// ErrNoHeader is returned when no supported delimiter yields a header row
// starting with "Title".
var ErrNoHeader = errors.New("content database export has no Title header")

var delimiters = []rune{';', ',', '\t'}

// Record is one row of the content database export.
type Record struct {
	ContentID string
	Title     string
	Filename  string
	Runtime   time.Duration
}

// ParseCSV reads a content database export. The delimiter is the first of
// ';', ',' and tab for which the header starts with "Title". Rows without a
// content id or with an unreadable runtime are skipped and counted; when an
// id appears twice the first row wins.
func ParseCSV(r io.Reader) ([]Record, int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read export: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader, header, err := detect(data)
	if err != nil {
		return nil, 0, err
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	idCol, ok := columns["ContentId"]
	if !ok {
		return nil, 0, fmt.Errorf("export has no ContentId column")
	}
	runtimeCol, ok := columns["RuntimeMs"]
	if !ok {
		return nil, 0, fmt.Errorf("export has no RuntimeMs column")
	}
	titleCol := columns["Title"]
	filenameCol, hasFilename := columns["Filename"]

	var (
		records []Record
		skipped int
		seen    = make(map[string]struct{})
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read export row: %w", err)
		}

		id := field(row, idCol)
		if id == "" {
			skipped++
			continue
		}
		runtime, err := parseRuntime(field(row, runtimeCol))
		if err != nil {
			skipped++
			continue
		}
		if _, dup := seen[id]; dup {
			skipped++
			continue
		}
		seen[id] = struct{}{}

		rec := Record{ContentID: id, Title: field(row, titleCol), Runtime: runtime}
		if hasFilename {
			rec.Filename = field(row, filenameCol)
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func detect(data []byte) (*csv.Reader, []string, error) {
	for _, d := range delimiters {
		reader := csv.NewReader(bytes.NewReader(data))
		reader.Comma = d
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		header, err := reader.Read()
		if err != nil || len(header) == 0 {
			continue
		}
		if strings.TrimSpace(header[0]) == "Title" {
			return reader, header, nil
		}
	}
	return nil, nil, ErrNoHeader
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseRuntime accepts plain milliseconds or an "HH:MM:SS.fff" timecode.
func parseRuntime(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("negative runtime %d", ms)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	return timecode.ParseDuration(s)
}
