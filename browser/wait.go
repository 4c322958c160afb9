package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Condition reports whether the page reached some state.
type Condition func(ctx context.Context, c Client) (bool, error)

// Present holds once selector matches an element.
func Present(selector string) Condition {
	return func(ctx context.Context, c Client) (bool, error) {
		_, err := c.Element(ctx, selector)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

// AnyPresent holds once any of selectors matches an element.
func AnyPresent(selectors ...string) Condition {
	return func(ctx context.Context, c Client) (bool, error) {
		for _, sel := range selectors {
			ok, err := Present(sel)(ctx, c)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
}

// Poll evaluates check every interval until it holds, ctx ends, or timeout
// elapses. A timeout yields ErrTimeout. The check always runs at least once.
func Poll(ctx context.Context, interval, timeout time.Duration, check func(ctx context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		ok, err := check(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		timer.Reset(min(interval, remaining))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}
