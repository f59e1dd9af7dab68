// Package store persists alerts, contacts and the audit trail with gorm and
// keeps hot reads in a cache.
package store

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"Raksha/internal/domain"
	"Raksha/internal/models"
	"Raksha/pkg/cache"
	"Raksha/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = &errors.Error{Code: http.StatusNotFound, Kind: errors.KindInvalid, Message: "not found"}

const defaultTTL = 5 * time.Minute

type Store struct {
	db    *gorm.DB
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// New migrates the schema. A nil cache disables read caching.
func New(db *gorm.DB, c cache.Cache) (*Store, error) {
	if err := models.Migrate(db); err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}
	return &Store{db: db, cache: c, ttl: defaultTTL, now: time.Now}, nil
}

func alertKey(id string) string        { return "alert:" + id }
func contactsKey(userID string) string { return "contacts:" + userID }

func dbErr(err error, msg string) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return errors.Mark(err, errors.KindTransient, msg)
}

func (s *Store) CreateAlert(ctx context.Context, alert domain.Alert) (string, error) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now().UTC()
	}
	row := models.AlertFromDomain(alert)
	if err := models.CreateAlert(s.db.WithContext(ctx), row); err != nil {
		return "", dbErr(err, "create alert")
	}
	s.cacheAlert(ctx, row.Domain())
	return row.ID, nil
}

func (s *Store) ResolveAlert(ctx context.Context, id string) error {
	changed, err := models.ResolveAlert(s.db.WithContext(ctx), id, s.now().UTC())
	if err != nil {
		return dbErr(err, "resolve alert")
	}
	s.forget(ctx, alertKey(id))
	if !changed {
		if _, err := s.Alert(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AttachClip(ctx context.Context, id, key string) error {
	if err := models.SetClipKey(s.db.WithContext(ctx), id, key); err != nil {
		return dbErr(err, "attach clip")
	}
	s.forget(ctx, alertKey(id))
	return nil
}

func (s *Store) RecordAction(ctx context.Context, id string, action domain.Action, actor string) error {
	if err := models.RecordAction(s.db.WithContext(ctx), id, string(action), actor); err != nil {
		return dbErr(err, "record action")
	}
	return nil
}

func (s *Store) Alert(ctx context.Context, id string) (domain.Alert, error) {
	if s.cache != nil {
		if a, ok := cache.GetJSON[domain.Alert](ctx, s.cache, alertKey(id)); ok {
			return a, nil
		}
	}
	row, err := models.GetAlert(s.db.WithContext(ctx), id)
	if err != nil {
		return domain.Alert{}, dbErr(err, "load alert")
	}
	a := row.Domain()
	s.cacheAlert(ctx, a)
	return a, nil
}

func (s *Store) Alerts(ctx context.Context, userID string, limit int) ([]domain.Alert, error) {
	rows, err := models.ListAlerts(s.db.WithContext(ctx), userID, limit)
	if err != nil {
		return nil, dbErr(err, "list alerts")
	}
	out := make([]domain.Alert, len(rows))
	for i := range rows {
		out[i] = rows[i].Domain()
	}
	return out, nil
}

func (s *Store) Actions(ctx context.Context, alertID string) ([]models.AlertAction, error) {
	rows, err := models.ListActions(s.db.WithContext(ctx), alertID)
	if err != nil {
		return nil, dbErr(err, "list actions")
	}
	return rows, nil
}

// ActiveContacts is the snapshot the fan-out notifies.
func (s *Store) ActiveContacts(ctx context.Context, userID string) ([]domain.Contact, error) {
	if s.cache != nil {
		if cs, ok := cache.GetJSON[[]domain.Contact](ctx, s.cache, contactsKey(userID)); ok {
			return cs, nil
		}
	}
	rows, err := models.ListContacts(s.db.WithContext(ctx), userID, true)
	if err != nil {
		return nil, dbErr(err, "list contacts")
	}
	out := make([]domain.Contact, len(rows))
	for i := range rows {
		out[i] = rows[i].Domain()
	}
	if s.cache != nil {
		_ = cache.SetJSON(ctx, s.cache, contactsKey(userID), out, s.ttl)
	}
	return out, nil
}

func (s *Store) Contacts(ctx context.Context, userID string) ([]domain.Contact, error) {
	rows, err := models.ListContacts(s.db.WithContext(ctx), userID, false)
	if err != nil {
		return nil, dbErr(err, "list contacts")
	}
	out := make([]domain.Contact, len(rows))
	for i := range rows {
		out[i] = rows[i].Domain()
	}
	return out, nil
}

func (s *Store) AddContact(ctx context.Context, c domain.Contact) (domain.Contact, error) {
	row := models.ContactFromDomain(c)
	if err := models.CreateContact(s.db.WithContext(ctx), row); err != nil {
		return domain.Contact{}, dbErr(err, "create contact")
	}
	s.forget(ctx, contactsKey(c.UserID))
	return row.Domain(), nil
}

func (s *Store) RemoveContact(ctx context.Context, userID, id string) error {
	deleted, err := models.DeleteContact(s.db.WithContext(ctx), userID, id)
	if err != nil {
		return dbErr(err, "delete contact")
	}
	if !deleted {
		return ErrNotFound
	}
	s.forget(ctx, contactsKey(userID))
	return nil
}

// ClipsResolvedBefore feeds the retention job.
func (s *Store) ClipsResolvedBefore(ctx context.Context, cutoff time.Time) ([]domain.Alert, error) {
	rows, err := models.ClipsResolvedBefore(s.db.WithContext(ctx), cutoff.UTC())
	if err != nil {
		return nil, dbErr(err, "list expired clips")
	}
	out := make([]domain.Alert, len(rows))
	for i := range rows {
		out[i] = rows[i].Domain()
	}
	return out, nil
}

func (s *Store) cacheAlert(ctx context.Context, a domain.Alert) {
	if s.cache != nil {
		_ = cache.SetJSON(ctx, s.cache, alertKey(a.ID), a, s.ttl)
	}
}

func (s *Store) forget(ctx context.Context, keys ...string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, keys...)
	}
}
