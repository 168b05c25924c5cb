// Package eventlog persists ENTER/EXIT records and answers dashboard
// queries over them. The log is append-only.
package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/teslashibe/farmgate/pkg/episode"
)

// TimeFormat is how timestamps are written to the log.
const TimeFormat = "2006-01-02 15:04:05"

// Query filters List results.
type Query struct {
	Since time.Time // zero means from the beginning
	Limit int       // most recent Limit records; zero means all
}

// Store is a durable append-only event log.
type Store interface {
	Append(ctx context.Context, rec episode.Record) error
	// List returns records oldest first.
	List(ctx context.Context, q Query) ([]episode.Record, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Open creates the store for backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendCSV, "":
		return OpenCSV(path)
	case BackendSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// apply trims an oldest-first slice to the query.
func apply(recs []episode.Record, q Query) []episode.Record {
	if !q.Since.IsZero() {
		i := 0
		for i < len(recs) && recs[i].Timestamp.Before(q.Since) {
			i++
		}
		recs = recs[i:]
	}
	if q.Limit > 0 && len(recs) > q.Limit {
		recs = recs[len(recs)-q.Limit:]
	}
	return recs
}
