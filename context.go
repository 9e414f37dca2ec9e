// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mbridge

import "crypto/x509"

// Action identifies which lifecycle operation a context describes.
type Action string

const (
	Connect     Action = "connect"
	Publish     Action = "publish"
	Subscribe   Action = "subscribe"
	Unsubscribe Action = "unsubscribe"
)

// Options carries protocol-specific per-packet settings, opaque to the core.
type Options map[string]any

// Option keys shared by the MQTT connection and the broker client.
const (
	OptQoS       = "qos"
	OptRetain    = "retain"
	OptDup       = "dup"
	OptMessageID = "messageID"
)

// QoS returns the quality-of-service level stored in the options.
func (o Options) QoS() byte {
	switch v := o[OptQoS].(type) {
	case byte:
		return v
	case int:
		return byte(v)
	default:
		return 0
	}
}

// Retain reports whether the options mark the message as retained.
func (o Options) Retain() bool {
	v, _ := o[OptRetain].(bool)
	return v
}

// MessageID returns the packet identifier stored in the options.
func (o Options) MessageID() uint16 {
	switch v := o[OptMessageID].(type) {
	case uint16:
		return v
	case int:
		return uint16(v)
	default:
		return 0
	}
}

// Auth carries the credentials the peer presented on connect.
type Auth struct {
	Username string
	Password []byte
}

// Context carries one action through the hook chain and the dispatch logic.
// Hooks may mutate any field except Action. Authorized and Reject are read
// only after every hook for the action has run.
//
// A context is confined to the goroutine driving its action; it must not be
// shared across actions or bridges.
type Context struct {
	Action   Action
	ClientID string

	// Authorized is true unless a hook denies the action.
	Authorized bool
	// Reject forces rejection regardless of Authorized.
	Reject bool
	// Err is set when a hook failed; the action is then never forwarded.
	Err error

	// Connect only.
	Auth           Auth
	Cert           x509.Certificate
	BadCredentials bool

	// Topic names a publish target, or a single subscribe/unsubscribe
	// topic when the set fields below are empty.
	Topic   string
	Payload []byte
	Options Options

	// Exactly one of Topic and the matching set below is populated for
	// subscribe and unsubscribe; the constructors enforce it.
	Subscriptions   map[string]Options
	Unsubscriptions []string
}

// NewConnectContext builds the context for a peer connect attempt.
func NewConnectContext(clientID string, auth Auth) *Context {
	return &Context{
		Action:     Connect,
		ClientID:   clientID,
		Authorized: true,
		Auth:       auth,
	}
}

// NewPublishContext builds the context for a peer publish.
func NewPublishContext(clientID, topic string, payload []byte, opts Options) *Context {
	return &Context{
		Action:     Publish,
		ClientID:   clientID,
		Authorized: true,
		Topic:      topic,
		Payload:    payload,
		Options:    opts,
	}
}

// NewSubscribeContext builds the context for a subscription request over a
// topic-to-options set.
func NewSubscribeContext(clientID string, subs map[string]Options) *Context {
	return &Context{
		Action:        Subscribe,
		ClientID:      clientID,
		Authorized:    true,
		Subscriptions: subs,
	}
}

// NewSubscribeTopicContext builds the context for a single-topic
// subscription request.
func NewSubscribeTopicContext(clientID, topic string, opts Options) *Context {
	return &Context{
		Action:     Subscribe,
		ClientID:   clientID,
		Authorized: true,
		Topic:      topic,
		Options:    opts,
	}
}

// NewUnsubscribeContext builds the context for an unsubscribe request over a
// topic set.
func NewUnsubscribeContext(clientID string, topics []string) *Context {
	return &Context{
		Action:          Unsubscribe,
		ClientID:        clientID,
		Authorized:      true,
		Unsubscriptions: topics,
	}
}

// NewUnsubscribeTopicContext builds the context for a single-topic
// unsubscribe request.
func NewUnsubscribeTopicContext(clientID, topic string) *Context {
	return &Context{
		Action:     Unsubscribe,
		ClientID:   clientID,
		Authorized: true,
		Topic:      topic,
	}
}

// SubscriptionSet returns the requested subscriptions in set form,
// regardless of which variant the context was built with.
func (c *Context) SubscriptionSet() map[string]Options {
	if c.Subscriptions != nil {
		return c.Subscriptions
	}
	if c.Topic == "" {
		return nil
	}
	return map[string]Options{c.Topic: c.Options}
}

// UnsubscribeTopics returns the topics to unsubscribe, regardless of which
// variant the context was built with.
func (c *Context) UnsubscribeTopics() []string {
	if c.Unsubscriptions != nil {
		return c.Unsubscriptions
	}
	if c.Topic == "" {
		return nil
	}
	return []string{c.Topic}
}
