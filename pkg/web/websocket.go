package web

import (
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/farmgate/pkg/hub"
)

// handleStatusWS greets with the current status, then streams updates.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var opts []hub.ClientOption
	if msg, err := hub.NewEnvelope(hub.KindStatus, s.status()); err == nil {
		opts = append(opts, hub.WithGreeting(msg))
	}
	s.attach(s.deps.Dashboard.Status, c, opts...)
}

// handleCameraWS greets with the latest frame, if any.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	var opts []hub.ClientOption
	if img := s.currentJPEG(); img != nil {
		opts = append(opts, hub.WithGreeting(hub.NewSnapshot(img)))
	}
	s.attach(s.deps.Dashboard.Camera, c, opts...)
}

func (s *Server) handleEventsWS(c *websocket.Conn) {
	s.attach(s.deps.Dashboard.Events, c)
}

func (s *Server) attach(h *hub.Hub, c *websocket.Conn, opts ...hub.ClientOption) {
	client := hub.NewClient(h, c, opts...)
	if client == nil {
		c.Close()
		return
	}
	client.Run()
}
