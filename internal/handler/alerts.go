package handlers

import (
	"strings"

	"Raksha/internal/domain"
	"Raksha/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

type contactRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	PhoneNumber    string `json:"phoneNumber" validate:"required,e164"`
	WhatsappNumber string `json:"whatsappNumber" validate:"omitempty,e164"`
	Email          string `json:"email" validate:"omitempty,email"`
	IsPrimary      bool   `json:"isPrimary"`
}

func (h *Handlers) handleListAlerts(c *gin.Context) {
	limit := cast.ToInt(c.DefaultQuery("limit", "50"))
	alerts, err := h.Alerts.Alerts(c.Request.Context(), h.UserID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", alerts)
}

func (h *Handlers) handleGetAlert(c *gin.Context) {
	id := c.Param("id")
	alert, err := h.Alerts.Alert(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	actions, err := h.Alerts.Actions(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", gin.H{
		"alert":    alert,
		"mapsLink": alert.Location.MapsLink(),
		"actions":  actions,
	})
}

func (h *Handlers) handleListContacts(c *gin.Context) {
	contacts, err := h.Contacts.Contacts(c.Request.Context(), h.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "ok", contacts)
}

func (h *Handlers) handleAddContact(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	if msg := validateStruct(&req); msg != "" {
		response.Fail(c, msg, nil)
		return
	}
	contact, err := h.Contacts.AddContact(c.Request.Context(), domain.Contact{
		UserID:         h.UserID,
		Name:           strings.TrimSpace(req.Name),
		PhoneNumber:    req.PhoneNumber,
		WhatsappNumber: req.WhatsappNumber,
		Email:          req.Email,
		IsActive:       true,
		IsPrimary:      req.IsPrimary,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "contact added", contact)
}

func (h *Handlers) handleRemoveContact(c *gin.Context) {
	if err := h.Contacts.RemoveContact(c.Request.Context(), h.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, "contact removed", nil)
}
