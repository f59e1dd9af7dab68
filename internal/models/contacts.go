package models

import (
	"time"

	"Raksha/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EmergencyContact struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	UserID         string    `json:"userId" gorm:"size:64;index"`
	Name           string    `json:"name" gorm:"size:128"`
	PhoneNumber    string    `json:"phoneNumber" gorm:"size:32"`
	WhatsappNumber string    `json:"whatsappNumber" gorm:"size:32"`
	Email          string    `json:"email" gorm:"size:255"`
	IsActive       bool      `json:"isActive" gorm:"index"`
	IsPrimary      bool      `json:"isPrimary"`
	CreatedAt      time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (m *EmergencyContact) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

func (m *EmergencyContact) Domain() domain.Contact {
	return domain.Contact{
		ID:             m.ID,
		UserID:         m.UserID,
		Name:           m.Name,
		PhoneNumber:    m.PhoneNumber,
		WhatsappNumber: m.WhatsappNumber,
		Email:          m.Email,
		IsActive:       m.IsActive,
		IsPrimary:      m.IsPrimary,
	}
}

func ContactFromDomain(c domain.Contact) *EmergencyContact {
	return &EmergencyContact{
		ID:             c.ID,
		UserID:         c.UserID,
		Name:           c.Name,
		PhoneNumber:    c.PhoneNumber,
		WhatsappNumber: c.WhatsappNumber,
		Email:          c.Email,
		IsActive:       c.IsActive,
		IsPrimary:      c.IsPrimary,
	}
}

func CreateContact(db *gorm.DB, contact *EmergencyContact) error {
	return db.Create(contact).Error
}

// ListContacts returns a user's contacts, primary first. activeOnly drops
// deactivated ones.
func ListContacts(db *gorm.DB, userID string, activeOnly bool) ([]EmergencyContact, error) {
	q := db.Where("user_id = ?", userID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var contacts []EmergencyContact
	err := q.Order("is_primary desc").Order("name").Find(&contacts).Error
	return contacts, err
}

func DeleteContact(db *gorm.DB, userID, id string) (bool, error) {
	res := db.Where("user_id = ? AND id = ?", userID, id).Delete(&EmergencyContact{})
	return res.RowsAffected > 0, res.Error
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&EmergencyAlert{}, &AlertAction{}, &EmergencyContact{})
}
