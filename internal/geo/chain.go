package geo

import (
	"context"
	"time"

	"Raksha/internal/domain"
	"Raksha/internal/ports"
	"Raksha/pkg/errors"
)

// Chain asks each locator in turn. Every locator but the last gets at most
// Step of the caller's budget.
type Chain struct {
	Locators []ports.Locator
	Step     time.Duration
}

func (c Chain) CurrentPosition(ctx context.Context) (domain.Position, error) {
	var errs []error
	for i, l := range c.Locators {
		stepCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.Step > 0 && i < len(c.Locators)-1 {
			stepCtx, cancel = context.WithTimeout(ctx, c.Step)
		}
		pos, err := l.CurrentPosition(stepCtx)
		cancel()
		if err == nil {
			return pos, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return domain.Position{}, ErrNoFix
	}
	return domain.Position{}, errors.Mark(errors.Join(errs...), errors.KindUnavailable, "all locators failed")
}
