package conversation

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ellentanhsuling/scribe-bot/internal/risk"
)

const (
	// TimestampLayout is how entry times are written in exports.
	TimestampLayout = "2006-01-02 15:04:05"

	fileNameLayout = "20060102_150405"
	riskLinePrefix = "Risk Level: "
	speakerSep     = " - "
	textSep        = ": "
)

// ExportError reports a failure to persist an export. The in-memory log is
// unaffected.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export to %s failed: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// Export renders entries as text, two lines per entry followed by a blank
// line:
//
//	2024-01-02 15:04:05 - Person1: hello there
//	Risk Level: Normal
func Export(entries []Entry) []byte {
	var b bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&b, "%s%s%s%s%s\n", e.Timestamp.Format(TimestampLayout), speakerSep, e.Speaker, textSep, e.Text)
		fmt.Fprintf(&b, "%s%s\n\n", riskLinePrefix, e.Risk)
	}
	return b.Bytes()
}

// FileName returns the export file name for a save made at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("conversation_%s.txt", t.Format(fileNameLayout))
}

// Save writes the export of entries into dir and returns the file path.
func Save(dir string, entries []Entry, now time.Time) (string, error) {
	if dir == "" {
		dir = "."
	}
	filename := filepath.Join(dir, FileName(now))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &ExportError{Path: filename, Err: err}
	}
	if err := os.WriteFile(filename, Export(entries), 0644); err != nil {
		return "", &ExportError{Path: filename, Err: err}
	}
	return filename, nil
}

// Parse reads an export back into entries. Timestamps are interpreted in
// loc and carry second precision.
func Parse(r io.Reader, loc *time.Location) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	var pending *Entry
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		switch {
		case line == "":
			continue
		case pending == nil:
			e, err := parseHeader(line, loc)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			pending = &e
		default:
			if !strings.HasPrefix(line, riskLinePrefix) {
				return nil, fmt.Errorf("line %d: expected %q", lineNo, strings.TrimSpace(riskLinePrefix))
			}
			level, err := risk.ParseLevel(strings.TrimPrefix(line, riskLinePrefix))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			pending.Risk = level
			entries = append(entries, *pending)
			pending = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, fmt.Errorf("line %d: entry without risk level", lineNo)
	}
	return entries, nil
}

func parseHeader(line string, loc *time.Location) (Entry, error) {
	if len(line) < len(TimestampLayout)+len(speakerSep) || line[len(TimestampLayout):len(TimestampLayout)+len(speakerSep)] != speakerSep {
		return Entry{}, fmt.Errorf("malformed entry line: %q", line)
	}
	ts, err := time.ParseInLocation(TimestampLayout, line[:len(TimestampLayout)], loc)
	if err != nil {
		return Entry{}, fmt.Errorf("bad timestamp: %w", err)
	}

	rest := line[len(TimestampLayout)+len(speakerSep):]
	speaker, text, found := strings.Cut(rest, textSep)
	if !found {
		return Entry{}, fmt.Errorf("missing speaker separator: %q", line)
	}
	return Entry{Timestamp: ts, Speaker: speaker, Text: text}, nil
}
