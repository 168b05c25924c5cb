package hub

import (
	"context"

	"github.com/teslashibe/farmgate/pkg/episode"
	"github.com/teslashibe/farmgate/pkg/eventlog"
	"github.com/teslashibe/farmgate/pkg/monitor"
)

// Dashboard bundles the three live channels and publishes a zone's
// updates onto them.
type Dashboard struct {
	Status *Hub
	Camera *Hub
	Events *Hub
}

// NewDashboard creates the status, camera and events hubs.
func NewDashboard() *Dashboard {
	return &Dashboard{
		Status: New("status"),
		Camera: New("camera"),
		Events: New("events"),
	}
}

// Run runs all hubs until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) {
	go d.Status.Run(ctx)
	go d.Camera.Run(ctx)
	d.Events.Run(ctx)
	<-d.Status.Done()
	<-d.Camera.Done()
}

// PublishStatus implements monitor.Publisher.
func (d *Dashboard) PublishStatus(s monitor.Status) {
	if d.Status.ClientCount() == 0 {
		return
	}
	_ = d.Status.Publish(KindStatus, s)
}

// PublishFrame implements monitor.Publisher. Frames are skipped when
// nobody watches.
func (d *Dashboard) PublishFrame(jpeg []byte) {
	if d.Camera.ClientCount() == 0 {
		return
	}
	d.Camera.BroadcastBinary(jpeg)
}

// PublishEvent implements monitor.Publisher.
func (d *Dashboard) PublishEvent(rec episode.Record) {
	_ = d.Events.Publish(KindEvent, eventlog.View(rec))
}

var _ monitor.Publisher = (*Dashboard)(nil)
