package loader

import (
	"bufio"
	"compress/gzip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"ptscheck/models"
	"ptscheck/utils/timecode"
)

const (
	maxScheduleSize = 100 * 1024 * 1024 // 100 MB max, after decompression
	sniffLength     = 3072
)

var (
	ErrUnsupportedFormat = errors.New("unsupported schedule format")
	ErrUnknownCharset    = errors.New("unknown charset")
)

var elementKinds = map[string]models.Kind{
	"vaEvent":     models.KindProgram,
	"siEvent":     models.KindMetadata,
	"logoEvent":   models.KindLogoOverlay,
	"layoutEvent": models.KindLayoutOverlay,
}

// Service reads playout schedule exports into memory.
type Service struct {
	fs       afero.Fs
	encoding encoding.Encoding // nil means: trust the XML declaration
}

// NewService creates a loader reading from fs. A non-empty encodingName
// overrides whatever charset the document declares.
func NewService(fs afero.Fs, encodingName string) (*Service, error) {
	s := &Service{fs: fs}
	if strings.TrimSpace(encodingName) != "" {
		enc, err := lookupEncoding(encodingName)
		if err != nil {
			return nil, err
		}
		s.encoding = enc
	}
	return s, nil
}

// Load reads and decodes the schedule at path.
func (s *Service) Load(path string) (models.Schedule, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return models.Schedule{}, fmt.Errorf("open schedule: %w", err)
	}
	defer f.Close()

	schedule, err := s.Decode(f, path)
	if err != nil {
		return models.Schedule{}, err
	}
	log.Printf("[loader] loaded %s: %d events", path, len(schedule.Events))
	return schedule, nil
}

// Decode reads a whole schedule from r. Any structural problem aborts the
// load; a schedule is either complete or not returned at all.
func (s *Service) Decode(r io.Reader, source string) (models.Schedule, error) {
	reader, head, err := s.unwrap(r)
	if err != nil {
		return models.Schedule{}, err
	}
	if s.encoding == nil {
		if label := declaredCharset(head); label != "" {
			if _, err := lookupEncoding(label); err != nil {
				return models.Schedule{}, fmt.Errorf("decode %s: %w", source, err)
			}
		}
	}

	limited := &io.LimitedReader{R: reader, N: maxScheduleSize + 1}
	events, err := s.parse(limited)
	if limited.N <= 0 {
		return models.Schedule{}, fmt.Errorf("decode %s: schedule exceeds %d bytes", source, maxScheduleSize)
	}
	if err != nil {
		return models.Schedule{}, fmt.Errorf("decode %s: %w", source, err)
	}
	return models.NewSchedule(source, events), nil
}

// unwrap sniffs the input, strips a gzip layer and rejects anything that is
// not text. The returned head is the first bytes of the (decompressed) document.
func (s *Service) unwrap(r io.Reader) (io.Reader, []byte, error) {
	br := bufio.NewReaderSize(r, sniffLength)
	head, err := br.Peek(sniffLength)
	if err != nil && err != io.EOF && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, nil, fmt.Errorf("read schedule: %w", err)
	}
	mtype := mimetype.Detect(head)

	if mtype.Is("application/gzip") {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("decompress gzip: %w", err)
		}
		inner := bufio.NewReaderSize(gz, sniffLength)
		head, err = inner.Peek(sniffLength)
		if err != nil && err != io.EOF && !errors.Is(err, bufio.ErrBufferFull) {
			return nil, nil, fmt.Errorf("decompress gzip: %w", err)
		}
		mtype = mimetype.Detect(head)
		br = inner
	}

	if !isText(mtype) {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mtype.String())
	}
	return br, head, nil
}

var xmlDeclCharset = regexp.MustCompile(`^\s*<\?xml[^>]*\sencoding\s*=\s*["']([^"']+)["']`)

func declaredCharset(head []byte) string {
	m := xmlDeclCharset.FindSubmatch(head)
	if m == nil {
		return ""
	}
	return string(m[1])
}

// isText walks the mimetype hierarchy; text/xml descends from text/plain.
func isText(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// lookupEncoding resolves a charset label the way browsers do, so
// "ISO-8859-1" maps to windows-1252.
func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, _ := charset.Lookup(strings.TrimSpace(name))
	if enc == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCharset, name)
	}
	return enc, nil
}

// Export structures for parsing
type xmlEvent struct {
	EventID    string         `xml:"eventId"`
	ServiceID  string         `xml:"serviceId"`
	ProgramID  string         `xml:"programId"`
	Title      string         `xml:"title"`
	StartTime  string         `xml:"startTime"`
	Duration   string         `xml:"duration"`
	ContentID  string         `xml:"contentId"`
	Logo       string         `xml:"logo"`
	SIStandard *xmlSIStandard `xml:"siStandard"`
}

type xmlSIStandard struct {
	DisplayedStart    string `xml:"displayedStart"`
	DisplayedDuration string `xml:"displayedDuration"`
	Description       string `xml:"description"`
}

// parse streams through the document and decodes every event element in
// document order, wherever it is nested.
func (s *Service) parse(r io.Reader) ([]models.Event, error) {
	if s.encoding != nil {
		r = transform.NewReader(r, s.encoding.NewDecoder())
	}
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = s.charsetReader

	var (
		events []models.Event
		root   bool
	)
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse XML: %w", err)
		}

		se, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		root = true
		kind, ok := elementKinds[se.Name.Local]
		if !ok {
			continue
		}

		var raw xmlEvent
		if err := decoder.DecodeElement(&raw, &se); err != nil {
			return nil, fmt.Errorf("parse %s #%d: %w", se.Name.Local, len(events), err)
		}
		ev, err := convert(kind, raw)
		if err != nil {
			return nil, fmt.Errorf("%s #%d (eventId %s): %w", se.Name.Local, len(events), raw.EventID, err)
		}
		events = append(events, ev)
	}
	if !root {
		return nil, fmt.Errorf("%w: no XML root element", ErrUnsupportedFormat)
	}
	return events, nil
}

func (s *Service) charsetReader(label string, input io.Reader) (io.Reader, error) {
	if s.encoding != nil {
		// already transcoded by the override
		return input, nil
	}
	enc, err := lookupEncoding(label)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

func convert(kind models.Kind, raw xmlEvent) (models.Event, error) {
	start, err := timecode.ParseTimestamp(raw.StartTime)
	if err != nil {
		return models.Event{}, fmt.Errorf("startTime: %w", err)
	}
	duration, err := timecode.ParseDuration(raw.Duration)
	if err != nil {
		return models.Event{}, fmt.Errorf("duration: %w", err)
	}

	ev := models.Event{
		Kind:      kind,
		EventID:   strings.TrimSpace(raw.EventID),
		ServiceID: strings.TrimSpace(raw.ServiceID),
		ProgramID: strings.TrimSpace(raw.ProgramID),
		Title:     raw.Title,
		ContentID: strings.TrimSpace(raw.ContentID),
		Start:     start,
		Duration:  duration,
	}
	if kind.IsOverlay() {
		ev.Overlay = strings.TrimSpace(raw.Logo)
	}

	if kind == models.KindMetadata && raw.SIStandard != nil {
		si := raw.SIStandard
		ev.Description = strings.TrimSpace(si.Description)
		if strings.TrimSpace(si.DisplayedStart) != "" {
			dStart, err := timecode.ParseTimestamp(si.DisplayedStart)
			if err != nil {
				return models.Event{}, fmt.Errorf("displayedStart: %w", err)
			}
			dDuration, err := timecode.ParseDuration(si.DisplayedDuration)
			if err != nil {
				return models.Event{}, fmt.Errorf("displayedDuration: %w", err)
			}
			ev.Displayed = &models.DisplayedWindow{Start: dStart, Duration: dDuration}
		}
	}
	return ev, nil
}
