// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"

	"github.com/absmach/mbridge"
	"github.com/absmach/mbridge/bridge"
	"github.com/absmach/mbridge/broker"
	mptls "github.com/absmach/mbridge/pkg/tls"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type binding struct {
	action mbridge.Action
	hook   bridge.Hook
}

// Proxy accepts peer connections and runs one bridge per connection against
// the configured broker target.
type Proxy struct {
	config mbridge.Config
	logger *slog.Logger
	hooks  []binding
}

// New - creates new MQTT bridge proxy.
func New(config mbridge.Config, logger *slog.Logger) *Proxy {
	return &Proxy{
		config: config,
		logger: logger,
	}
}

// AddHook registers h for every bridge this proxy creates. Call before
// Listen.
func (p *Proxy) AddHook(action mbridge.Action, h bridge.Hook) error {
	if h == nil {
		return bridge.ErrInvalidHook
	}
	p.hooks = append(p.hooks, binding{action: action, hook: h})
	return nil
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
	status := mptls.SecurityStatus(p.config.TLSConfig)
	p.logger.Info(fmt.Sprintf("MQTT bridge server started at %s %s", p.config.Address, status))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.accept(ctx, l)
	})
	g.Go(func() error {
		<-ctx.Done()
		return l.Close()
	})
	if err := g.Wait(); err != nil {
		p.logger.Info(fmt.Sprintf("MQTT bridge server at %s %s exiting with errors", p.config.Address, status), slog.String("error", err.Error()))
	} else {
		p.logger.Info(fmt.Sprintf("MQTT bridge server at %s %s exiting...", p.config.Address, status))
	}
	return nil
}

func (p *Proxy) accept(ctx context.Context, l net.Listener) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			in, err := l.Accept()
			if err != nil {
				p.logger.Warn("Accept error " + err.Error())
				continue
			}
			p.logger.Info("Accepted new client")
			go p.Handle(ctx, in)
		}
	}
}

// Handle runs one bridge session over an accepted connection, blocking until
// either peer closes. The broker connection is established here, before the
// peer's CONNECT is acknowledged; per-action dispatch never reconnects.
func (p *Proxy) Handle(ctx context.Context, in net.Conn) {
	defer p.close(in)

	session, err := uuid.NewRandom()
	if err != nil {
		p.logger.Error("Failed to generate session id", slog.Any("error", err))
		return
	}
	logger := p.logger.With(slog.String("session", session.String()))

	cert, err := mptls.ClientCert(in)
	if err != nil {
		logger.Error("Failed to get client certificate", slog.Any("error", err))
		return
	}

	up, err := broker.Connect(broker.Config{
		Address:  p.config.Target,
		ClientID: "mbridge-" + session.String(),
		Username: p.config.Username,
		Password: p.config.Password,
		Timeout:  p.config.OpTimeout,
	}, logger)
	if err != nil {
		logger.Error("Cannot connect to remote broker "+p.config.Target+" due to: "+err.Error(), slog.Any("error", err))
		return
	}
	defer func() {
		if err := up.Terminate(); err != nil {
			logger.Warn("Error closing broker client", slog.Any("error", err))
		}
	}()

	down := NewConn(in, cert, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := bridge.New(down, up, logger)
	for _, bind := range p.hooks {
		if err := b.AddHook(bind.action, bind.hook); err != nil {
			logger.Error("Failed to install hook", slog.Any("error", err))
			return
		}
	}
	b.Start(ctx)

	for {
		select {
		case err := <-b.Errors():
			logger.Warn("Bridge error", slog.Any("error", err))
		case <-b.Done():
			logger.Info("Session closed")
			return
		}
	}
}

func (p *Proxy) close(conn net.Conn) {
	if err := conn.Close(); err != nil {
		p.logger.Warn(fmt.Sprintf("Error closing connection %s", err.Error()))
	}
}
