package eventlog

import "github.com/teslashibe/farmgate/pkg/episode"

// Event is the dashboard's JSON shape for a record.
type Event struct {
	Timestamp       string  `json:"timestamp"`
	Kind            string  `json:"event_kind"`
	Local           string  `json:"description_localized"`
	Plain           string  `json:"description_plain"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	EpisodeID       string  `json:"episode_id,omitempty"`
}

// View converts a record for display.
func View(rec episode.Record) Event {
	return Event{
		Timestamp:       rec.Timestamp.Format(TimeFormat),
		Kind:            string(rec.Kind),
		Local:           rec.Local,
		Plain:           rec.Plain,
		DurationSeconds: rec.Duration.Seconds(),
		EpisodeID:       rec.EpisodeID,
	}
}

// Views converts records newest first.
func Views(recs []episode.Record) []Event {
	out := make([]Event, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		out = append(out, View(recs[i]))
	}
	return out
}
