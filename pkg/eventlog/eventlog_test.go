package eventlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/farmgate/pkg/episode"
)

var base = time.Date(2026, 3, 1, 6, 0, 0, 0, time.Local)

func sample() []episode.Record {
	return []episode.Record{
		{Timestamp: base, Kind: episode.KindEnter, Local: "ඇතුළු", Plain: "Animals entered the farm", EpisodeID: "ep-1"},
		{Timestamp: base.Add(42 * time.Second), Kind: episode.KindExit, Local: "පිටවී, 42s", Plain: "Animals left the farm (Duration: 42s)", Duration: 42 * time.Second, EpisodeID: "ep-1"},
		{Timestamp: base.Add(time.Hour), Kind: episode.KindEnter, Local: "ඇතුළු", Plain: "Animals entered the farm", EpisodeID: "ep-2"},
		{Timestamp: base.Add(time.Hour + 10*time.Second), Kind: episode.KindExit, Local: "පිටවී, 10s", Plain: "Animals left the farm, with \"quotes\", commas", Duration: 10 * time.Second, EpisodeID: "ep-2"},
	}
}

func fill(t *testing.T, s Store, recs []episode.Record) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, s.Append(context.Background(), r))
	}
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events", "events.csv")
	s, err := OpenCSV(path)
	require.NoError(t, err)
	defer s.Close()

	fill(t, s, sample())

	got, err := s.List(context.Background(), Query{})
	require.NoError(t, err)

	// The CSV layout has no episode column.
	if diff := cmp.Diff(sample(), got, cmpopts.IgnoreFields(episode.Record{}, "EpisodeID")); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVHeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")

	s, err := OpenCSV(path)
	require.NoError(t, err)
	fill(t, s, sample()[:1])
	require.NoError(t, s.Close())

	s, err = OpenCSV(path)
	require.NoError(t, err)
	fill(t, s, sample()[1:2])
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,event_kind,description_localized,description_plain", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2026-03-01 06:00:00,ENTER,"))
}

func TestCSVClosed(t *testing.T) {
	s, err := OpenCSV(filepath.Join(t.TempDir(), "events.csv"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Append(context.Background(), sample()[0]), ErrClosed)
	_, err = s.List(context.Background(), Query{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSQLiteRoundTrip(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer s.Close()

	fill(t, s, sample())

	got, err := s.List(context.Background(), Query{})
	require.NoError(t, err)
	if diff := cmp.Diff(sample(), got); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	fill(t, s, sample()[:2])
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.List(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestQueryFilters(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"csv": func(t *testing.T) Store {
			s, err := OpenCSV(filepath.Join(t.TempDir(), "events.csv"))
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
			require.NoError(t, err)
			return s
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			fill(t, s, sample())
			ctx := context.Background()

			got, err := s.List(ctx, Query{Limit: 2})
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.True(t, got[0].Timestamp.Equal(base.Add(time.Hour)), "most recent two, oldest first")

			got, err = s.List(ctx, Query{Since: base.Add(time.Minute)})
			require.NoError(t, err)
			assert.Len(t, got, 2)
		})
	}
}

func TestOpenBackends(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(BackendCSV, filepath.Join(dir, "a.csv"))
	require.NoError(t, err)
	assert.IsType(t, &CSV{}, s)
	s.Close()

	s, err = Open(BackendSQLite, filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	s.Close()

	_, err = Open("parquet", filepath.Join(dir, "a.pq"))
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestSummarize(t *testing.T) {
	now := base.Add(2 * time.Hour)
	recs := append([]episode.Record{
		{Timestamp: base.Add(-24 * time.Hour), Kind: episode.KindEnter},
	}, sample()...)

	s := Summarize(recs, now)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 4, s.Today)
	assert.Equal(t, 3, s.Enters)
	assert.Equal(t, 2, s.Exits)
	assert.True(t, s.LastDetection.Equal(base.Add(time.Hour)))
	assert.Equal(t, 26*time.Second, s.MeanDuration)
	assert.Equal(t, 42*time.Second, s.MaxDuration)
	// Sample stddev of {42, 10}.
	assert.InDelta(t, 22.627, s.StdDuration.Seconds(), 0.01)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, base)
	assert.Zero(t, s.Total)
	assert.True(t, s.LastDetection.IsZero())
	assert.Zero(t, s.MeanDuration)
}

type slowStore struct {
	mu    sync.Mutex
	recs  []episode.Record
	fail  error
	block chan struct{}
}

func (s *slowStore) Append(ctx context.Context, r episode.Record) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.recs = append(s.recs, r)
	return nil
}

func (s *slowStore) List(context.Context, Query) ([]episode.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]episode.Record(nil), s.recs...), nil
}

func (s *slowStore) Close() error { return nil }

func TestAsyncWriterPreservesOrder(t *testing.T) {
	store := &slowStore{}
	w := NewAsyncWriter(store, DefaultAsyncConfig())

	for _, r := range sample() {
		require.NoError(t, w.Append(r))
	}
	require.NoError(t, w.Close(context.Background()))

	got, _ := store.List(context.Background(), Query{})
	if diff := cmp.Diff(sample(), got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	assert.ErrorIs(t, w.Append(sample()[0]), ErrClosed)
}

func TestAsyncWriterDropsWhenFull(t *testing.T) {
	store := &slowStore{block: make(chan struct{})}
	w := NewAsyncWriter(store, AsyncConfig{QueueSize: 1, WriteTimeout: time.Second})

	// One record in flight in the writer, one in the queue, then full.
	var full bool
	for i := 0; i < 10; i++ {
		if err := w.Append(sample()[0]); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	assert.True(t, full)

	close(store.block)
	require.NoError(t, w.Close(context.Background()))
}

func TestAsyncWriterReportsFailures(t *testing.T) {
	store := &slowStore{fail: errors.New("disk full")}

	var mu sync.Mutex
	var failed []episode.Kind
	w := NewAsyncWriter(store, AsyncConfig{OnError: func(r episode.Record, err error) {
		mu.Lock()
		failed = append(failed, r.Kind)
		mu.Unlock()
	}})

	require.NoError(t, w.Append(sample()[0]))
	require.NoError(t, w.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []episode.Kind{episode.KindEnter}, failed)
}

func TestViewsNewestFirst(t *testing.T) {
	at := time.Date(2026, 3, 1, 6, 0, 0, 0, time.Local)
	recs := []episode.Record{
		{Timestamp: at, Kind: episode.KindEnter, Plain: "in", EpisodeID: "e1"},
		{Timestamp: at.Add(7 * time.Second), Kind: episode.KindExit, Plain: "out", Duration: 7 * time.Second, EpisodeID: "e1"},
	}

	got := Views(recs)
	require.Len(t, got, 2)
	assert.Equal(t, "EXIT", got[0].Kind)
	assert.Equal(t, 7.0, got[0].DurationSeconds)
	assert.Equal(t, "2026-03-01 06:00:00", got[1].Timestamp)
	assert.Zero(t, got[1].DurationSeconds)
}
