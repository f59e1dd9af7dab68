package handlers

import (
	"strings"
	"time"

	"Raksha/internal/domain"
	"Raksha/pkg/logger"
	"Raksha/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type triggerRequest struct {
	Source   string `json:"source" validate:"omitempty,oneof=manual voice external"`
	Evidence string `json:"evidence" validate:"max=500"`
}

type resolveRequest struct {
	AlertID string `json:"alertId" validate:"omitempty,max=64"`
}

type locationRequest struct {
	Lat      float64 `json:"lat" validate:"latitude"`
	Lng      float64 `json:"lng" validate:"longitude"`
	Accuracy float64 `json:"accuracy" validate:"gte=0"`
	Address  string  `json:"address" validate:"max=200"`
}

type triggerResponse struct {
	Alert    domain.Alert `json:"alert"`
	Accepted bool         `json:"accepted"`
}

func (h *Handlers) handleTrigger(c *gin.Context) {
	var req triggerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Fail(c, "invalid request", nil)
			return
		}
	}
	if msg := validateStruct(&req); msg != "" {
		response.Fail(c, msg, nil)
		return
	}
	source := domain.SourceManual
	if req.Source != "" {
		var err error
		if source, err = domain.ParseTriggerSource(req.Source); err != nil {
			response.Fail(c, err.Error(), nil)
			return
		}
	}

	alert, accepted, err := h.Emergency.Trigger(c.Request.Context(), domain.Trigger{
		Source:   source,
		At:       time.Now(),
		Evidence: strings.TrimSpace(req.Evidence),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	msg := "emergency triggered"
	if !accepted {
		msg = "emergency already active"
	}
	response.Success(c, msg, triggerResponse{Alert: alert, Accepted: accepted})
}

func (h *Handlers) handleResolve(c *gin.Context) {
	var req resolveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Fail(c, "invalid request", nil)
			return
		}
	}
	if msg := validateStruct(&req); msg != "" {
		response.Fail(c, msg, nil)
		return
	}

	var (
		resolved bool
		err      error
	)
	if req.AlertID != "" {
		resolved, err = h.Emergency.ResolveAlert(c.Request.Context(), req.AlertID, "user")
	} else {
		resolved, err = h.Emergency.Resolve(c.Request.Context(), "user")
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	msg := "emergency resolved"
	if !resolved {
		msg = "no active emergency"
	}
	response.Success(c, msg, gin.H{"resolved": resolved})
}

func (h *Handlers) handleStatus(c *gin.Context) {
	response.Success(c, "ok", h.Emergency.Status())
}

// handleLocation accepts a fix from the user's phone or wearable.
func (h *Handlers) handleLocation(c *gin.Context) {
	if h.Device == nil {
		response.Fail(c, "device location not enabled", nil)
		return
	}
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	if msg := validateStruct(&req); msg != "" {
		response.Fail(c, msg, nil)
		return
	}
	pos := domain.Position{
		Lat:      req.Lat,
		Lng:      req.Lng,
		Accuracy: req.Accuracy,
		Address:  strings.TrimSpace(req.Address),
		Source:   "device",
		At:       time.Now(),
	}
	if err := h.Device.Update(pos); err != nil {
		response.Error(c, err)
		return
	}
	logger.Debug("device fix received", zap.Float64("accuracy", req.Accuracy))
	response.Success(c, "location updated", nil)
}
