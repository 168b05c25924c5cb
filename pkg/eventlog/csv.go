package eventlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/teslashibe/farmgate/pkg/episode"
)

// Header is the CSV column layout.
var Header = []string{"timestamp", "event_kind", "description_localized", "description_plain"}

// CSV is a Store backed by a single CSV file.
type CSV struct {
	path string

	mu     sync.Mutex
	f      *os.File
	w      *csv.Writer
	closed bool
}

// OpenCSV opens or creates the log at path, writing the header to a new
// or empty file.
func OpenCSV(path string) (*CSV, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat event log: %w", err)
	}

	s := &CSV{path: path, f: f, w: csv.NewWriter(f)}
	if st.Size() == 0 {
		if err := s.write(Header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *CSV) write(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}

// Append writes one row and flushes it.
func (s *CSV) Append(ctx context.Context, rec episode.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.write([]string{
		rec.Timestamp.Format(TimeFormat),
		string(rec.Kind),
		rec.Local,
		rec.Plain,
	})
}

// List reads the whole file. EXIT durations are recovered from the
// preceding ENTER timestamp, at whole-second precision.
func (s *CSV) List(ctx context.Context, q Query) ([]episode.Record, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)

	var (
		recs    []episode.Record
		enterAt time.Time
		first   = true
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read event log: %w", err)
		}
		if first {
			first = false
			if row[0] == Header[0] {
				continue
			}
		}

		ts, err := time.ParseInLocation(TimeFormat, row[0], time.Local)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", row[0], err)
		}
		rec := episode.Record{
			Timestamp: ts,
			Kind:      episode.Kind(row[1]),
			Local:     row[2],
			Plain:     row[3],
		}
		switch rec.Kind {
		case episode.KindEnter:
			enterAt = ts
		case episode.KindExit:
			if !enterAt.IsZero() {
				rec.Duration = ts.Sub(enterAt)
				enterAt = time.Time{}
			}
		}
		recs = append(recs, rec)
	}
	return apply(recs, q), nil
}

// Close flushes and closes the file.
func (s *CSV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.w.Flush()
	return s.f.Close()
}
