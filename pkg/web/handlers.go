package web

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/farmgate/pkg/eventlog"
	"github.com/teslashibe/farmgate/pkg/monitor"
	"github.com/teslashibe/farmgate/pkg/notify"
)

// Dashboard replies, in the farmer's language.
const (
	msgConfigUpdated  = "වින්‍යාසය යාවත්කාලීන කරන ලදී"
	msgSystemStarted  = "පද්ධතිය ආරම්භ කරන ලදී"
	msgAlreadyRunning = "පද්ධතිය දැනටමත් ක්‍රියාත්මක වේ"
	msgSystemStopped  = "පද්ධතිය නවතා ඇත"
	msgAlarmTested    = "ඇලම් පරීක්ෂා කරන ලදී"
	msgAlarmStopped   = "ඇලම් නවතා ඇත"
	msgAlarmDisabled  = "ශබ්ද පද්ධතිය අක්‍රීයයි"
	msgSMSSent        = "SMS යවන ලදී"
	msgNoRecipient    = "කර්මිකාරයාගේ දුරකථන අංකය සකසා නැත"
	msgSMSDisabled    = "SMS අක්‍රීයයි"
	msgNoFile         = "ගොනුව තෝරාගෙන නැත"
	msgBadFileType    = "අවසර නැති ගොනු වර්ගය"
	msgAlarmUploaded  = "ඇලම් ගොනුව උඩුගත කරන ලදී"
)

var alarmExts = map[string]bool{".mp3": true, ".wav": true, ".ogg": true, ".opus": true}

type result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusResponse is the zone status plus alarm state.
type StatusResponse struct {
	monitor.Status
	AlarmActive bool `json:"alarm_active"`
}

func (s *Server) status() StatusResponse {
	resp := StatusResponse{Status: s.deps.Zone.Status()}
	if s.deps.Alarm != nil {
		resp.AlarmActive = s.deps.Alarm.Active()
	}
	return resp
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	img := s.currentJPEG()
	if img == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no frame yet")
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(img)
}

// handleVideoFeed streams multipart JPEG until the client goes away or
// the server shuts down.
func (s *Server) handleVideoFeed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "multipart/x-mixed-replace; boundary=frame")
	c.Set(fiber.HeaderCacheControl, "no-store")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := s.clock.NewTicker(s.deps.FrameInterval)
		defer ticker.Stop()
		for {
			if img := s.currentJPEG(); img != nil {
				if err := writePart(w, img); err != nil {
					return
				}
			}
			select {
			case <-s.done:
				return
			case <-ticker.C():
			}
		}
	})
	return nil
}

// writePart writes one multipart JPEG part and flushes it.
func writePart(w *bufio.Writer, img []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(img)); err != nil {
		return err
	}
	if _, err := w.Write(img); err != nil {
		return err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

func (s *Server) handleEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	recs, err := s.deps.Events.List(c.UserContext(), eventlog.Query{Limit: limit})
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	return c.JSON(eventlog.Views(recs))
}

func (s *Server) handleStatistics(c *fiber.Ctx) error {
	recs, err := s.deps.Events.List(c.UserContext(), eventlog.Query{})
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	return c.JSON(eventlog.Summarize(recs, s.clock.Now()))
}

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	cfg := s.deps.Config.Get()
	return c.JSON(cfg.Public())
}

func (s *Server) handleUpdateConfig(c *fiber.Ctx) error {
	var params map[string]any
	if err := c.BodyParser(&params); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := s.applyConfig(params); err != nil {
		return err
	}
	cfg := s.deps.Config.Get()
	return c.JSON(fiber.Map{"success": true, "message": msgConfigUpdated, "config": cfg.Public()})
}

// handleReloadConfig re-reads the config file and environment.
func (s *Server) handleReloadConfig(c *fiber.Ctx) error {
	if err := s.deps.Config.Reload(); err != nil {
		return err
	}
	s.logger.Info("⚙️ configuration reloaded", "path", s.deps.Config.Path())
	cfg := s.deps.Config.Get()
	return c.JSON(fiber.Map{"success": true, "message": msgConfigUpdated, "config": cfg.Public()})
}

// applyConfig updates and persists. Rejections surface through
// handleError as 400s.
func (s *Server) applyConfig(params map[string]any) error {
	if err := s.deps.Config.Update(params); err != nil {
		return err
	}
	if err := s.deps.Config.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	s.logger.Info("⚙️ configuration updated", "keys", len(params))
	return nil
}

func (s *Server) handleUploadAlarm(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil || fh.Filename == "" {
		return fiber.NewError(fiber.StatusBadRequest, msgNoFile)
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !alarmExts[ext] {
		return fiber.NewError(fiber.StatusBadRequest, msgBadFileType)
	}

	if err := os.MkdirAll(s.deps.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	dest := filepath.Join(s.deps.UploadDir, "alert"+ext)
	if err := c.SaveFile(fh, dest); err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	if err := s.applyConfig(map[string]any{"alarm_file": dest}); err != nil {
		return err
	}
	return c.JSON(result{Success: true, Message: msgAlarmUploaded + ": " + filepath.Base(dest)})
}

func (s *Server) handleTestSMS(c *fiber.Ctx) error {
	if s.deps.SMS == nil {
		return c.JSON(result{Success: false, Message: msgSMSDisabled})
	}
	ep := notify.Episode{At: s.clock.Now()}
	err := s.deps.SMS.Notify(c.UserContext(), notify.KindTest, ep)
	switch {
	case err == nil:
		return c.JSON(result{Success: true, Message: msgSMSSent})
	case errors.Is(err, notify.ErrNoRecipient):
		return c.JSON(result{Success: false, Message: msgNoRecipient})
	case errors.Is(err, notify.ErrDisabled):
		return c.JSON(result{Success: false, Message: msgSMSDisabled})
	default:
		s.logger.Warn("test SMS failed", "error", err)
		return c.JSON(result{Success: false, Message: err.Error()})
	}
}

func (s *Server) handleTestAlarm(c *fiber.Ctx) error {
	if s.deps.Alarm == nil {
		return c.JSON(result{Success: false, Message: msgAlarmDisabled})
	}
	if err := s.deps.Alarm.Test(s.deps.TestAlarmFor); err != nil {
		return c.JSON(result{Success: false, Message: err.Error()})
	}
	return c.JSON(result{Success: true, Message: msgAlarmTested})
}

func (s *Server) handleStopAlarm(c *fiber.Ctx) error {
	if s.deps.Alarm == nil {
		return c.JSON(result{Success: false, Message: msgAlarmDisabled})
	}
	if err := s.deps.Alarm.Stop(); err != nil {
		return c.JSON(result{Success: false, Message: err.Error()})
	}
	return c.JSON(result{Success: true, Message: msgAlarmStopped})
}

func (s *Server) handleStartSystem(c *fiber.Ctx) error {
	if s.deps.Zone.Running() {
		return c.JSON(result{Success: false, Message: msgAlreadyRunning})
	}
	s.deps.Zone.Resume()
	return c.JSON(result{Success: true, Message: msgSystemStarted})
}

func (s *Server) handleStopSystem(c *fiber.Ctx) error {
	s.deps.Zone.Pause()
	if s.deps.Alarm != nil {
		if err := s.deps.Alarm.Stop(); err != nil {
			s.logger.Warn("alarm stop failed", "error", err)
		}
	}
	return c.JSON(result{Success: true, Message: msgSystemStopped})
}

