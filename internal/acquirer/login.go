package acquirer

import (
	"context"
	"time"
)

// LoginResult is how a login wait ended.
type LoginResult string

const (
	LoginCleared   LoginResult = "cleared"
	LoginSignalled LoginResult = "signalled"
	LoginTimedOut  LoginResult = "timed_out"
	LoginCancelled LoginResult = "cancelled"
)

// Continue resolves a pending login or manual-navigation wait. It reports
// whether a wait was pending.
func (a *Acquirer) Continue() bool {
	if !a.waiting.Load() {
		return false
	}
	select {
	case a.signal <- struct{}{}:
	default:
	}
	return true
}

// Waiting reports whether the acquirer is paused for the operator.
func (a *Acquirer) Waiting() bool {
	return a.waiting.Load()
}

func (a *Acquirer) beginWait() {
	// Drop signals sent while nothing was waiting.
	select {
	case <-a.signal:
	default:
	}
	a.waiting.Store(true)
}

func (a *Acquirer) endWait() {
	a.waiting.Store(false)
}

// awaitLogin pauses until the wall disappears, an operator signal arrives,
// the wait expires or ctx is done. Credentials are never entered on the
// operator's behalf.
func (a *Acquirer) awaitLogin(ctx context.Context, page Page) LoginResult {
	a.beginWait()
	defer a.endWait()

	a.logger.Warn("login wall detected, waiting for operator",
		"timeout", a.opts.LoginWait)

	timer := time.NewTimer(a.opts.LoginWait)
	defer timer.Stop()
	ticker := time.NewTicker(a.opts.LoginPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return LoginCancelled
		case <-a.signal:
			return LoginSignalled
		case <-timer.C:
			return LoginTimedOut
		case <-ticker.C:
			landing, err := page.Inspect(ctx)
			if err != nil {
				a.logger.Debug("failed to inspect page during login wait", "error", err)
				continue
			}
			if !a.targets.AtLoginWall(landing) {
				return LoginCleared
			}
		}
	}
}

// awaitOperator holds a bounded window open for manual navigation. It returns
// false only when ctx is done.
func (a *Acquirer) awaitOperator(ctx context.Context, d time.Duration) bool {
	a.beginWait()
	defer a.endWait()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-a.signal:
	case <-timer.C:
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
