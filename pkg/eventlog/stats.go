package eventlog

import (
	"time"

	"github.com/teslashibe/farmgate/pkg/episode"
	"gonum.org/v1/gonum/stat"
)

// Statistics summarise a log for the dashboard.
type Statistics struct {
	Total         int           `json:"total_events"`
	Today         int           `json:"today_events"`
	Enters        int           `json:"enter_events"`
	Exits         int           `json:"exit_events"`
	LastDetection time.Time     `json:"last_detection"`
	MeanDuration  time.Duration `json:"mean_duration_ns"`
	StdDuration   time.Duration `json:"std_duration_ns"`
	MaxDuration   time.Duration `json:"max_duration_ns"`
}

// Summarize computes statistics over recs (oldest first) relative to now.
// "Today" is the calendar day of now in now's location.
func Summarize(recs []episode.Record, now time.Time) Statistics {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	var (
		s         Statistics
		durations []float64
	)
	s.Total = len(recs)
	for _, r := range recs {
		if !r.Timestamp.Before(midnight) {
			s.Today++
		}
		switch r.Kind {
		case episode.KindEnter:
			s.Enters++
			if r.Timestamp.After(s.LastDetection) {
				s.LastDetection = r.Timestamp
			}
		case episode.KindExit:
			s.Exits++
			if r.Duration > 0 {
				durations = append(durations, r.Duration.Seconds())
				if r.Duration > s.MaxDuration {
					s.MaxDuration = r.Duration
				}
			}
		}
	}

	switch len(durations) {
	case 0:
	case 1:
		s.MeanDuration = seconds(durations[0])
	default:
		mean, std := stat.MeanStdDev(durations, nil)
		s.MeanDuration = seconds(mean)
		s.StdDuration = seconds(std)
	}
	return s
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
