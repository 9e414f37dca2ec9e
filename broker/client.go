// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package broker wraps the Eclipse Paho client into the upstream operations
// the bridge dispatches to.
package broker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/absmach/mbridge"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var errOpTimeout = errors.New("broker operation timed out")

const messageBuffer = 64

// Config holds the settings of one broker session.
type Config struct {
	// Address of the broker in a form the Paho client understands, e.g.
	// tcp://localhost:1883 or ws://localhost:8080/mqtt.
	Address  string
	ClientID string
	Username string
	Password string
	// Timeout bounds every broker operation, connect included. A stalled
	// broker surfaces as an operation error instead of blocking the
	// action that triggered it.
	Timeout time.Duration
}

var _ mbridge.Upstream = (*Client)(nil)

// Client is the upstream side of a bridge: one broker session relaying the
// peer's publishes and subscriptions and delivering the broker's messages.
type Client struct {
	client  mqtt.Client
	timeout time.Duration
	msgs    chan mbridge.Message
	errs    chan error
}

// Connect establishes the broker session. Messages the broker pushes for
// this client are delivered on Messages; a lost connection surfaces on
// Errors.
func Connect(cfg Config, logger *slog.Logger) (*Client, error) {
	c := &Client{
		timeout: cfg.Timeout,
		msgs:    make(chan mbridge.Message, messageBuffer),
		errs:    make(chan error, 1),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Address).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(false).
		SetConnectTimeout(cfg.Timeout)
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, m mqtt.Message) {
		msg := mbridge.Message{
			Topic:   m.Topic(),
			Payload: m.Payload(),
			Options: mbridge.Options{
				mbridge.OptQoS:    m.Qos(),
				mbridge.OptRetain: m.Retained(),
			},
		}
		select {
		case c.msgs <- msg:
		default:
			logger.Warn("message buffer full, dropping", slog.String("topic", m.Topic()))
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		select {
		case c.errs <- err:
		default:
		}
	})

	c.client = mqtt.NewClient(opts)
	if err := c.wait(c.client.Connect()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Messages() <-chan mbridge.Message {
	return c.msgs
}

func (c *Client) Errors() <-chan error {
	return c.errs
}

func (c *Client) Publish(topic string, payload []byte, opts mbridge.Options) error {
	return c.wait(c.client.Publish(topic, opts.QoS(), opts.Retain(), payload))
}

func (c *Client) Subscribe(subs map[string]mbridge.Options) error {
	filters := make(map[string]byte, len(subs))
	for topic, opts := range subs {
		filters[topic] = opts.QoS()
	}
	return c.wait(c.client.SubscribeMultiple(filters, nil))
}

func (c *Client) Unsubscribe(topics ...string) error {
	return c.wait(c.client.Unsubscribe(topics...))
}

// Terminate force-closes the broker session without waiting for in-flight
// work.
func (c *Client) Terminate() error {
	c.client.Disconnect(0)
	return nil
}

func (c *Client) wait(t mqtt.Token) error {
	if !t.WaitTimeout(c.timeout) {
		return errOpTimeout
	}
	return t.Error()
}
