// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package mqtt adapts a network connection speaking MQTT 3.1.1 into the
// action and delivery primitives the bridge consumes, and accepts peer
// connections building one bridge per connection.
package mqtt

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/absmach/mbridge"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// SUBACK failure return code, MQTT 3.1.1 [MQTT-3.9.3].
const subackFailure = 0x80

const (
	actionBuffer = 8
	errBuffer    = 1
)

var _ mbridge.Downstream = (*Conn)(nil)

// Conn is the downstream side of a bridge: it decodes the peer's control
// packets into action contexts and turns acknowledgements and forwarded
// messages back into packets.
type Conn struct {
	conn    net.Conn
	cert    x509.Certificate
	logger  *slog.Logger
	actions chan *mbridge.Context
	errs    chan error

	writeMu sync.Mutex
	once    sync.Once
	msgID   uint32

	// Requested topic order per SUBSCRIBE packet ID, needed to build
	// SUBACK return codes after hooks may have touched the set.
	pendingMu sync.Mutex
	pending   map[uint16][]string
}

// NewConn wraps an accepted connection and starts its read loop. The
// Actions channel is closed when the peer disconnects or the connection
// fails.
func NewConn(conn net.Conn, cert x509.Certificate, logger *slog.Logger) *Conn {
	c := &Conn{
		conn:    conn,
		cert:    cert,
		logger:  logger,
		actions: make(chan *mbridge.Context, actionBuffer),
		errs:    make(chan error, errBuffer),
		pending: make(map[uint16][]string),
	}
	go c.read()
	return c
}

func (c *Conn) Actions() <-chan *mbridge.Context {
	return c.actions
}

func (c *Conn) Errors() <-chan error {
	return c.errs
}

func (c *Conn) read() {
	defer close(c.actions)

	var clientID string
	for {
		pkt, err := packets.ReadPacket(c.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
				c.sendErr(err)
			}
			return
		}

		switch p := pkt.(type) {
		case *packets.ConnectPacket:
			clientID = p.ClientIdentifier
			ctx := mbridge.NewConnectContext(clientID, mbridge.Auth{
				Username: p.Username,
				Password: p.Password,
			})
			ctx.Cert = c.cert
			c.actions <- ctx
		case *packets.PublishPacket:
			c.actions <- mbridge.NewPublishContext(clientID, p.TopicName, p.Payload, mbridge.Options{
				mbridge.OptQoS:       p.Qos,
				mbridge.OptRetain:    p.Retain,
				mbridge.OptDup:       p.Dup,
				mbridge.OptMessageID: p.MessageID,
			})
		case *packets.SubscribePacket:
			subs := make(map[string]mbridge.Options, len(p.Topics))
			for i, topic := range p.Topics {
				subs[topic] = mbridge.Options{mbridge.OptQoS: p.Qoss[i]}
			}
			ctx := mbridge.NewSubscribeContext(clientID, subs)
			ctx.Options = mbridge.Options{mbridge.OptMessageID: p.MessageID}
			c.remember(p.MessageID, p.Topics)
			c.actions <- ctx
		case *packets.UnsubscribePacket:
			ctx := mbridge.NewUnsubscribeContext(clientID, p.Topics)
			ctx.Options = mbridge.Options{mbridge.OptMessageID: p.MessageID}
			c.actions <- ctx
		case *packets.PingreqPacket:
			// Keepalive is a transport concern, answered inline.
			if err := c.write(packets.NewControlPacket(packets.Pingresp)); err != nil {
				c.sendErr(err)
				return
			}
		case *packets.DisconnectPacket:
			return
		default:
			// QoS acknowledgements from the peer need no relay.
		}
	}
}

// Ack completes an action towards the peer. The decision flags on the
// context pick the protocol response: refused CONNACK codes for denied
// connects, failure SUBACK codes for denied subscriptions. QoS 0 publishes
// produce no packet.
func (c *Conn) Ack(ctx *mbridge.Context) error {
	switch ctx.Action {
	case mbridge.Connect:
		ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
		ack.ReturnCode = connackCode(ctx)
		return c.write(ack)
	case mbridge.Publish:
		if ctx.Options.QoS() == 0 {
			return nil
		}
		ack := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
		ack.MessageID = ctx.Options.MessageID()
		return c.write(ack)
	case mbridge.Subscribe:
		ack := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
		ack.MessageID = ctx.Options.MessageID()
		ack.ReturnCodes = c.grantedCodes(ctx)
		return c.write(ack)
	case mbridge.Unsubscribe:
		ack := packets.NewControlPacket(packets.Unsuback).(*packets.UnsubackPacket)
		ack.MessageID = ctx.Options.MessageID()
		return c.write(ack)
	default:
		return fmt.Errorf("cannot acknowledge unknown action %q", ctx.Action)
	}
}

// NotifyError reports a failed action to the peer. MQTT 3.1.1 has no generic
// error packet; connect and subscribe failures are reflected in their
// acknowledgement codes, the rest is logged.
func (c *Conn) NotifyError(ctx *mbridge.Context, err error) {
	c.logger.Warn("action failed",
		slog.String("client_id", ctx.ClientID),
		slog.String("action", string(ctx.Action)),
		slog.Any("error", err))
}

// Publish forwards an inbound broker message to the peer.
func (c *Conn) Publish(topic string, payload []byte, opts mbridge.Options) error {
	pkt := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	pkt.TopicName = topic
	pkt.Payload = payload
	pkt.Qos = opts.QoS()
	pkt.Retain = opts.Retain()
	if pkt.Qos > 0 {
		pkt.MessageID = c.nextID()
	}
	return c.write(pkt)
}

func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) write(pkt packets.ControlPacket) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return pkt.Write(c.conn)
}

func (c *Conn) sendErr(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

func (c *Conn) nextID() uint16 {
	for {
		if id := uint16(atomic.AddUint32(&c.msgID, 1)); id != 0 {
			return id
		}
	}
}

func (c *Conn) remember(id uint16, topics []string) {
	c.pendingMu.Lock()
	c.pending[id] = topics
	c.pendingMu.Unlock()
}

func (c *Conn) forget(id uint16) []string {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	topics := c.pending[id]
	delete(c.pending, id)
	return topics
}

// grantedCodes builds the SUBACK return codes in the order the topics were
// requested. Topics a hook removed from the set are reported as failed, as
// is the whole request when it was denied.
func (c *Conn) grantedCodes(ctx *mbridge.Context) []byte {
	topics := c.forget(ctx.Options.MessageID())
	denied := ctx.Err != nil || !ctx.Authorized || ctx.Reject

	codes := make([]byte, 0, len(topics))
	for _, topic := range topics {
		opts, ok := ctx.SubscriptionSet()[topic]
		if denied || !ok {
			codes = append(codes, subackFailure)
			continue
		}
		codes = append(codes, opts.QoS())
	}
	return codes
}

func connackCode(ctx *mbridge.Context) byte {
	switch {
	case ctx.BadCredentials:
		return packets.ErrRefusedBadUsernameOrPassword
	case ctx.Err != nil:
		return packets.ErrRefusedServerUnavailable
	case !ctx.Authorized || ctx.Reject:
		return packets.ErrRefusedNotAuthorised
	default:
		return packets.Accepted
	}
}
