// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package mbridge relays MQTT lifecycle actions between a single connected
// peer and an upstream broker, running registered hooks before each action is
// forwarded.
package mbridge

// Message is an inbound broker message on its way to the downstream peer.
type Message struct {
	Topic   string
	Payload []byte
	Options Options
}

// Downstream is the connection to the directly connected peer. One context is
// delivered on Actions per action the peer issued; the channel is closed when
// the connection ends.
type Downstream interface {
	// Actions delivers the peer's lifecycle actions.
	Actions() <-chan *Context

	// Errors surfaces transport failures not tied to a single action.
	Errors() <-chan error

	// Publish forwards an inbound broker message to the peer.
	Publish(topic string, payload []byte, opts Options) error

	// Ack completes an action towards the peer, reflecting the decision
	// flags carried by the context.
	Ack(ctx *Context) error

	// NotifyError informs the peer that an action failed before being
	// forwarded, where the protocol has a way to express it.
	NotifyError(ctx *Context, err error)

	// Close tears the connection down.
	Close() error
}

// Upstream is the client connection to the broker the bridge relays to.
type Upstream interface {
	// Messages delivers messages the broker pushed to this client.
	Messages() <-chan Message

	// Errors surfaces client transport failures.
	Errors() <-chan error

	Publish(topic string, payload []byte, opts Options) error
	Subscribe(subs map[string]Options) error
	Unsubscribe(topics ...string) error

	// Terminate force-closes the client connection without waiting for
	// in-flight work.
	Terminate() error
}
