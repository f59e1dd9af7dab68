package handlers

import (
	"time"

	"Raksha/internal/domain"
	"Raksha/pkg/errors"
	"Raksha/pkg/logger"
	"Raksha/pkg/sse"

	"go.uber.org/zap"
)

// SSE event names seen by the dashboard.
const (
	EventState    = "state"
	EventProgress = "progress"
	EventViewers  = "viewers"
	EventError    = "error"
)

type stateEvent struct {
	State   domain.State `json:"state"`
	AlertID string       `json:"alertId"`
	At      time.Time    `json:"at"`
}

type progressEvent struct {
	AlertID string         `json:"alertId"`
	Attempt domain.Attempt `json:"attempt"`
}

type viewersEvent struct {
	AlertID string `json:"alertId"`
	Count   int    `json:"count"`
}

type errorEvent struct {
	Component string `json:"component"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// DashboardSink forwards core events to the guardian dashboard stream.
type DashboardSink struct {
	events *sse.Hub
}

func NewDashboardSink(events *sse.Hub) *DashboardSink {
	return &DashboardSink{events: events}
}

func (s *DashboardSink) StateChanged(state domain.State, alertID string) {
	s.publish(EventState, stateEvent{State: state, AlertID: alertID, At: time.Now()})
}

func (s *DashboardSink) NotificationProgress(alertID string, attempt domain.Attempt) {
	s.publish(EventProgress, progressEvent{AlertID: alertID, Attempt: attempt})
}

func (s *DashboardSink) ViewerCount(alertID string, count int) {
	s.publish(EventViewers, viewersEvent{AlertID: alertID, Count: count})
}

func (s *DashboardSink) Error(component string, err error) {
	s.publish(EventError, errorEvent{Component: component, Kind: errors.KindOf(err).String(), Message: err.Error()})
}

func (s *DashboardSink) publish(name string, v any) {
	if err := s.events.Publish(name, v); err != nil {
		logger.Warn("dashboard event dropped", zap.String("event", name), zap.Error(err))
	}
}
