// Package geo provides the locators the emergency core asks for a fix.
package geo

import (
	"context"
	"sync"
	"time"

	"Raksha/internal/domain"
	"Raksha/pkg/errors"
)

var ErrNoFix = errors.New(errors.KindUnavailable, "no location fix")

// DeviceLocator serves fixes reported by the user's device. CurrentPosition
// returns the latest fix younger than MaxAge, or waits for the next one.
type DeviceLocator struct {
	MaxAge time.Duration
	now    func() time.Time

	mu      sync.Mutex
	last    domain.Position
	updated chan struct{}
}

func NewDeviceLocator(maxAge time.Duration) *DeviceLocator {
	if maxAge <= 0 {
		maxAge = 2 * time.Minute
	}
	return &DeviceLocator{MaxAge: maxAge, now: time.Now, updated: make(chan struct{})}
}

// Update records a fix and wakes waiting callers.
func (d *DeviceLocator) Update(p domain.Position) error {
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return errors.Newf(errors.KindInvalid, "coordinates out of range: %f,%f", p.Lat, p.Lng)
	}
	if p.At.IsZero() {
		p.At = d.now()
	}
	if p.Source == "" {
		p.Source = "device"
	}
	d.mu.Lock()
	d.last = p
	close(d.updated)
	d.updated = make(chan struct{})
	d.mu.Unlock()
	return nil
}

// Last returns the most recent fix regardless of age.
func (d *DeviceLocator) Last() (domain.Position, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, !d.last.At.IsZero()
}

func (d *DeviceLocator) CurrentPosition(ctx context.Context) (domain.Position, error) {
	for {
		d.mu.Lock()
		last, wait := d.last, d.updated
		d.mu.Unlock()
		if !last.At.IsZero() && d.now().Sub(last.At) <= d.MaxAge {
			return last, nil
		}
		select {
		case <-ctx.Done():
			return domain.Position{}, errors.Mark(ctx.Err(), errors.KindUnavailable, "waiting for device fix")
		case <-wait:
		}
	}
}
