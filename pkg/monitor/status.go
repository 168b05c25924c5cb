package monitor

import "time"

// Status is the zone's live state for the dashboard.
type Status struct {
	Zone             string    `json:"zone"`
	Running          bool      `json:"system_running"`
	State            string    `json:"state"`
	Intrusion        bool      `json:"is_intrusion"`
	EpisodeID        string    `json:"episode_id,omitempty"`
	IntrusionSince   time.Time `json:"intrusion_since,omitempty"`
	IntrusionSeconds float64   `json:"intrusion_duration"`
	Present          bool      `json:"animals_detected"`
	Regions          int       `json:"region_count"`
	Labels           []string  `json:"labels"`
	DetectionEnabled bool      `json:"detection_enabled"`
	CameraOnline     bool      `json:"camera_online"`
	FramesProcessed  uint64    `json:"frames_processed"`
	FramesDropped    uint64    `json:"frames_dropped"`
	LastFrame        time.Time `json:"last_frame,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Status snapshots the zone.
func (z *Zone) Status() Status {
	now := z.clock.Now()
	snap := z.deps.Machine.Snapshot(now)

	z.mu.RLock()
	last, lastFrame := z.last, z.lastFrame
	z.mu.RUnlock()

	_, drops := z.mailbox.Stats()
	enabled := true
	if d, ok := z.deps.Detector.(interface{ Enabled() bool }); ok {
		enabled = d.Enabled()
	}

	labels := last.Labels
	if labels == nil {
		labels = []string{}
	}

	return Status{
		Zone:             z.name,
		Running:          z.Running(),
		State:            snap.State.String(),
		Intrusion:        snap.Intrusion,
		EpisodeID:        snap.EpisodeID,
		IntrusionSince:   snap.Since,
		IntrusionSeconds: snap.Elapsed.Seconds(),
		Present:          last.Present,
		Regions:          len(last.Regions),
		Labels:           labels,
		DetectionEnabled: enabled,
		CameraOnline:     z.cameraOnline.Load(),
		FramesProcessed:  z.processed.Load(),
		FramesDropped:    drops,
		LastFrame:        lastFrame,
		Timestamp:        now,
	}
}
