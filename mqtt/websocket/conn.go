// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package websocket

import (
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

var _ net.Conn = (*conn)(nil)

// conn adapts a websocket connection carrying binary MQTT frames into a
// net.Conn usable by the packet codec. MQTT control packets may span or
// share websocket messages, so reads drain message readers sequentially.
type conn struct {
	ws *websocket.Conn
	r  io.Reader
}

func newConn(ws *websocket.Conn) net.Conn {
	return &conn{ws: ws}
}

func (c *conn) Read(b []byte) (int, error) {
	for {
		if c.r == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			c.r = r
		}
		n, err := c.r.Read(b)
		if err == io.EOF {
			// Message drained, move to the next one.
			c.r = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (c *conn) Write(b []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *conn) Close() error {
	return c.ws.Close()
}

func (c *conn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *conn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *conn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
