// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"sync"
)

// Activation resolves once a started session is live (with its watch URL) or
// has been torn down before getting there.
type Activation struct {
	SessionID string

	once sync.Once
	done chan struct{}
	url  string
	err  error
}

func newActivation(sessionID string) *Activation {
	return &Activation{SessionID: sessionID, done: make(chan struct{})}
}

func (a *Activation) resolve(url string) {
	a.once.Do(func() {
		a.url = url
		close(a.done)
	})
}

func (a *Activation) reject(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// Done is closed when the outcome is known.
func (a *Activation) Done() <-chan struct{} { return a.done }

// Wait blocks until the outcome is known or ctx ends.
func (a *Activation) Wait(ctx context.Context) (string, error) {
	select {
	case <-a.done:
		return a.url, a.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
