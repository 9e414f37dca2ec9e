// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package websocket serves the bridge over MQTT-over-WebSocket peers.
package websocket

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/absmach/mbridge"
	"github.com/absmach/mbridge/bridge"
	"github.com/absmach/mbridge/mqtt"
	mptls "github.com/absmach/mbridge/pkg/tls"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Proxy represents WS bridge proxy.
type Proxy struct {
	config mbridge.Config
	logger *slog.Logger
	inner  *mqtt.Proxy
}

// New - creates new WS bridge proxy.
func New(config mbridge.Config, logger *slog.Logger) *Proxy {
	return &Proxy{
		config: config,
		logger: logger,
		inner:  mqtt.New(config, logger),
	}
}

// AddHook registers h for every bridge this proxy creates. Call before
// Listen.
func (p *Proxy) AddHook(action mbridge.Action, h bridge.Hook) error {
	return p.inner.AddHook(action, h)
}

var upgrader = websocket.Upgrader{
	// Timeout for WS upgrade request handshake
	HandshakeTimeout: 10 * time.Second,
	// Paho JS client expecting header Sec-WebSocket-Protocol:mqtt in Upgrade response during handshake.
	Subprotocols: []string{"mqttv3.1", "mqtt"},
	// Allow CORS
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, p.config.PathPrefix) {
		http.NotFound(w, r)
		return
	}
	cconn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Error("Error upgrading connection", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	go p.pass(cconn)
}

func (p *Proxy) pass(in *websocket.Conn) {
	// Using a new context so as to avoid session cancellation due to
	// parent context cancellation mid-handshake.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.inner.Handle(ctx, newConn(in))
}

// Listen blocks serving the configured address until ctx is cancelled.
func (p *Proxy) Listen(ctx context.Context) error {
	l, err := net.Listen("tcp", p.config.Address)
	if err != nil {
		return err
	}

	if p.config.TLSConfig != nil {
		l = tls.NewListener(l, p.config.TLSConfig)
	}

	mux := http.NewServeMux()
	mux.Handle(p.config.PathPrefix, p)
	server := http.Server{Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(l)
	})
	g.Go(func() error {
		<-ctx.Done()
		return server.Close()
	})

	status := mptls.SecurityStatus(p.config.TLSConfig)
	p.logger.Info(fmt.Sprintf("MQTT websocket bridge server started at %s%s %s", p.config.Address, p.config.PathPrefix, status))

	if err := g.Wait(); err != nil {
		p.logger.Info(fmt.Sprintf("MQTT websocket bridge server at %s%s %s exiting with errors", p.config.Address, p.config.PathPrefix, status), slog.String("error", err.Error()))
	} else {
		p.logger.Info(fmt.Sprintf("MQTT websocket bridge server at %s%s %s exiting...", p.config.Address, p.config.PathPrefix, status))
	}
	return nil
}
