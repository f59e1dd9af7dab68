package models

import (
	"time"

	"Raksha/internal/domain"

	"gorm.io/gorm"
)

// EmergencyAlert is one emergency episode. Only IsResolved, ResolvedAt and
// ClipKey change after creation.
type EmergencyAlert struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	UserID      string     `json:"userId" gorm:"size:64;index"`
	TriggerType string     `json:"triggerType" gorm:"size:16"`
	Evidence    string     `json:"evidence" gorm:"size:512"`
	Lat         float64    `json:"lat"`
	Lng         float64    `json:"lng"`
	Accuracy    float64    `json:"accuracy"`
	Address     string     `json:"address" gorm:"size:255"`
	Degraded    bool       `json:"degraded"`
	IsResolved  bool       `json:"isResolved" gorm:"index"`
	ResolvedAt  *time.Time `json:"resolvedAt"`
	ClipKey     string     `json:"clipKey" gorm:"size:255"`
	CreatedAt   time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
}

// AlertAction is the audit trail of an alert.
type AlertAction struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	AlertID   string    `json:"alertId" gorm:"size:36;index"`
	Action    string    `json:"action" gorm:"size:32"`
	Actor     string    `json:"actor" gorm:"size:64"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

func AlertFromDomain(a domain.Alert) *EmergencyAlert {
	return &EmergencyAlert{
		ID:          a.ID,
		UserID:      a.UserID,
		TriggerType: string(a.TriggerType),
		Evidence:    a.Evidence,
		Lat:         a.Location.Lat,
		Lng:         a.Location.Lng,
		Accuracy:    a.Location.Accuracy,
		Address:     a.Location.Address,
		Degraded:    a.Location.Degraded,
		IsResolved:  a.IsResolved,
		ResolvedAt:  a.ResolvedAt,
		ClipKey:     a.ClipKey,
		CreatedAt:   a.CreatedAt,
	}
}

func (m *EmergencyAlert) Domain() domain.Alert {
	return domain.Alert{
		ID:          m.ID,
		UserID:      m.UserID,
		TriggerType: domain.TriggerSource(m.TriggerType),
		Evidence:    m.Evidence,
		Location: domain.Location{
			Lat:      m.Lat,
			Lng:      m.Lng,
			Accuracy: m.Accuracy,
			Address:  m.Address,
			Degraded: m.Degraded,
		},
		CreatedAt:  m.CreatedAt,
		IsResolved: m.IsResolved,
		ResolvedAt: m.ResolvedAt,
		ClipKey:    m.ClipKey,
	}
}

func CreateAlert(db *gorm.DB, alert *EmergencyAlert) error {
	return db.Create(alert).Error
}

func GetAlert(db *gorm.DB, id string) (*EmergencyAlert, error) {
	var alert EmergencyAlert
	if err := db.Where("id = ?", id).First(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// ListAlerts returns the newest alerts of a user first.
func ListAlerts(db *gorm.DB, userID string, limit int) ([]EmergencyAlert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var alerts []EmergencyAlert
	err := db.Where("user_id = ?", userID).Order("created_at desc").Limit(limit).Find(&alerts).Error
	return alerts, err
}

// ResolveAlert flips an unresolved alert. It reports whether a row changed.
func ResolveAlert(db *gorm.DB, id string, at time.Time) (bool, error) {
	res := db.Model(&EmergencyAlert{}).
		Where("id = ? AND is_resolved = ?", id, false).
		Updates(map[string]any{"is_resolved": true, "resolved_at": at})
	return res.RowsAffected > 0, res.Error
}

func SetClipKey(db *gorm.DB, id, key string) error {
	return db.Model(&EmergencyAlert{}).Where("id = ?", id).Update("clip_key", key).Error
}

// ClipsResolvedBefore lists resolved alerts still holding a clip that were
// resolved before cutoff.
func ClipsResolvedBefore(db *gorm.DB, cutoff time.Time) ([]EmergencyAlert, error) {
	var alerts []EmergencyAlert
	err := db.Where("is_resolved = ? AND clip_key <> ? AND resolved_at < ?", true, "", cutoff).
		Order("resolved_at").Find(&alerts).Error
	return alerts, err
}

func RecordAction(db *gorm.DB, alertID, action, actor string) error {
	return db.Create(&AlertAction{AlertID: alertID, Action: action, Actor: actor}).Error
}

func ListActions(db *gorm.DB, alertID string) ([]AlertAction, error) {
	var actions []AlertAction
	err := db.Where("alert_id = ?", alertID).Order("id").Find(&actions).Error
	return actions, err
}
