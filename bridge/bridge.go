// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package bridge relays lifecycle actions from one downstream peer to one
// upstream broker client. Each action runs through the hooks registered for
// it before being forwarded; inbound broker messages are relayed back to the
// peer untouched.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/absmach/mbridge"
)

var (
	// ErrHook wraps a hook failure; the action was never forwarded.
	ErrHook = errors.New("action hook failed")
	// ErrDispatch wraps an upstream operation failure after hooks passed.
	ErrDispatch = errors.New("failed to dispatch action to broker")
	// ErrAck wraps a failed acknowledgement towards the peer.
	ErrAck = errors.New("failed to acknowledge action to client")
	// ErrClient wraps transport failures on the peer connection.
	ErrClient = errors.New("client connection failed")
	// ErrBroker wraps transport failures on the broker client.
	ErrBroker = errors.New("broker connection failed")
)

const errBuffer = 16

// Bridge connects exactly one downstream peer with one upstream broker
// client. Both handles are assigned at construction and never reassigned; a
// bridge is built per accepted connection and torn down with it.
type Bridge struct {
	down    mbridge.Downstream
	up      mbridge.Upstream
	reg     *registry
	errs    chan error
	done    chan struct{}
	started atomic.Bool
	logger  *slog.Logger
}

// New creates a bridge over the given collaborator handles.
func New(down mbridge.Downstream, up mbridge.Upstream, logger *slog.Logger) *Bridge {
	return &Bridge{
		down:   down,
		up:     up,
		reg:    newRegistry(),
		errs:   make(chan error, errBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// AddHook appends h to the ordered chain for the action. Register during
// setup, not during traffic: chains already running keep the hooks they
// started with.
func (b *Bridge) AddHook(action mbridge.Action, h Hook) error {
	return b.reg.add(action, h)
}

// Errors exposes the aggregated failure stream: broker client errors, peer
// connection errors, dispatch failures and acknowledgement failures. The
// bridge never blocks on a missing or lagging observer.
func (b *Bridge) Errors() <-chan error {
	return b.errs
}

// Done is closed when the bridge stops relaying, either because a peer
// closed or because the context given to Start was cancelled.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Start wires the collaborator event sources and begins relaying. It returns
// immediately; calls after the first are no-ops.
func (b *Bridge) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	go b.relay(ctx)
}

func (b *Bridge) relay(ctx context.Context) {
	defer close(b.done)

	actions := b.down.Actions()
	messages := b.up.Messages()
	downErrs := b.down.Errors()
	upErrs := b.up.Errors()

	for {
		select {
		case c, ok := <-actions:
			if !ok {
				return
			}
			go b.handle(c)
		case m, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			b.forward(m)
		case err, ok := <-downErrs:
			if !ok {
				downErrs = nil
				continue
			}
			b.emit(fmt.Errorf("%w: %w", ErrClient, err))
		case err, ok := <-upErrs:
			if !ok {
				upErrs = nil
				continue
			}
			b.emit(fmt.Errorf("%w: %w", ErrBroker, err))
		case <-ctx.Done():
			return
		}
	}
}

// handle drives one action through hooks, dispatch and acknowledgement. It
// runs on its own goroutine, so hook chains complete asynchronously with
// respect to the peer that triggered them and in-flight actions never block
// each other. The bridge imposes no cross-action ordering.
func (b *Bridge) handle(c *mbridge.Context) {
	if err := b.reg.run(c); err != nil {
		c.Err = fmt.Errorf("%w: %w", ErrHook, err)
	}

	switch {
	case c.Err != nil:
		b.down.NotifyError(c, c.Err)
	case c.Action == mbridge.Connect:
		// The broker connection is owned by the bridge construction, so
		// connect is never dispatched upstream. Connect hooks gate the
		// acknowledgement only.
	case !c.Authorized || c.Reject:
		// Denied by hooks. The peer still gets its acknowledgement.
	default:
		if err := b.dispatch(c); err != nil {
			b.emit(fmt.Errorf("%w: %w", ErrDispatch, err))
			// The broker transport state is assumed corrupted after a
			// failed operation. No retry.
			if err := b.up.Terminate(); err != nil {
				b.logger.Warn("failed to terminate broker client", slog.Any("error", err))
			}
		}
	}

	if err := b.down.Ack(c); err != nil {
		b.emit(fmt.Errorf("%w: %w", ErrAck, err))
		if err := b.down.Close(); err != nil {
			b.logger.Warn("failed to close client connection", slog.Any("error", err))
		}
	}
}

func (b *Bridge) dispatch(c *mbridge.Context) error {
	switch c.Action {
	case mbridge.Publish:
		return b.up.Publish(c.Topic, c.Payload, c.Options)
	case mbridge.Subscribe:
		return b.up.Subscribe(c.SubscriptionSet())
	case mbridge.Unsubscribe:
		return b.up.Unsubscribe(c.UnsubscribeTopics()...)
	default:
		return nil
	}
}

// forward relays one broker message to the peer. No hooks, no
// acknowledgement tracking; delivery semantics belong to the connection.
func (b *Bridge) forward(m mbridge.Message) {
	if err := b.down.Publish(m.Topic, m.Payload, m.Options); err != nil {
		b.emit(fmt.Errorf("%w: %w", ErrClient, err))
	}
}

func (b *Bridge) emit(err error) {
	select {
	case b.errs <- err:
	default:
		b.logger.Warn("error stream full, dropping", slog.Any("error", err))
	}
}
