// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"sync"

	"github.com/absmach/mbridge"
)

// Hook inspects one action context before the action is forwarded. A hook may
// mutate the context or return an error to halt the chain; it never does
// both. Returning nil continues the chain even when the hook decided to deny
// the action through the context flags.
type Hook func(ctx *mbridge.Context) error

// ErrInvalidHook is returned when a nil hook is registered.
var ErrInvalidHook = errors.New("invalid hook: nil function")

// registry holds the ordered hook chains of one bridge. Registration is meant
// for setup time; adding hooks while actions are in flight gives no ordering
// guarantee relative to running chains.
type registry struct {
	mu    sync.RWMutex
	hooks map[mbridge.Action][]Hook
}

func newRegistry() *registry {
	return &registry{
		hooks: make(map[mbridge.Action][]Hook),
	}
}

func (r *registry) add(action mbridge.Action, h Hook) error {
	if h == nil {
		return ErrInvalidHook
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[action] = append(r.hooks[action], h)
	return nil
}

// run evaluates the chain registered for the context's action in strict
// registration order, stopping at the first failure. Hooks after a failed one
// are never invoked.
func (r *registry) run(ctx *mbridge.Context) error {
	r.mu.RLock()
	chain := r.hooks[ctx.Action]
	r.mu.RUnlock()

	for _, h := range chain {
		if err := h(ctx); err != nil {
			return err
		}
	}
	return nil
}
