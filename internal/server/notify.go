package server

import (
	"context"
	"time"

	"github.com/dukerupert/rollcall/internal/attendance"
	ws "github.com/dukerupert/rollcall/internal/websocket"
)

const notifyTimeout = 2 * time.Second

// notify fans committed attendance events out to metrics and to the live
// displays subscribed to the session.
func (s *Server) notify(ev attendance.Event) {
	s.metrics.ObserveEvent(ev)

	switch ev.Kind {
	case attendance.EventTokenRotated:
		topic := ws.SessionTopic(ev.Session.ID)
		if s.hub.TopicCount(topic) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		class, err := s.classStore.GetByID(ctx, ev.Session.ClassID)
		if err != nil {
			s.logger.Warn("load class for display", "session", ev.Session.ExternalID, "error", err)
		}
		payload, err := attendance.NewPayload(ev.Session, class)
		if err != nil {
			return
		}
		s.hub.Broadcast(topic, ws.NewMessage(ws.TypeTokenRotated, ev.Session.ExternalID, payload))

	case attendance.EventIntervalChanged:
		s.hub.Broadcast(ws.SessionTopic(ev.Session.ID), ws.NewMessage(ws.TypeIntervalChanged, ev.Session.ExternalID, map[string]any{
			"rotation_interval": ev.Session.RotationInterval,
		}))

	case attendance.EventMarkRecorded:
		s.hub.Broadcast(ws.SessionTopic(ev.Mark.SessionID), ws.NewMessage(ws.TypeMarkRecorded, "", map[string]any{
			"student_id": ev.Mark.StudentID,
			"marked_at":  ev.Mark.MarkedAt,
		}))

	case attendance.EventSessionEnded:
		s.hub.CloseTopic(ws.SessionTopic(ev.Session.ID), ws.NewMessage(ws.TypeSessionEnded, ev.Session.ExternalID, ev.Session))

	case attendance.EventSessionDeleted:
		s.hub.CloseTopic(ws.SessionTopic(ev.Session.ID), ws.NewMessage(ws.TypeSessionDeleted, ev.Session.ExternalID, nil))
	}
}
