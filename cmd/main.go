// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/mbridge"
	"github.com/absmach/mbridge/examples/simple"
	"github.com/absmach/mbridge/mqtt"
	"github.com/absmach/mbridge/mqtt/websocket"
	"github.com/caarlos0/env/v11"
	"golang.org/x/sync/errgroup"
)

const (
	mqttPrefix = "MBRIDGE_MQTT_"
	wsPrefix   = "MBRIDGE_WS_"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var level slog.LevelVar
	if v := os.Getenv("MBRIDGE_LOG_LEVEL"); v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			log.Fatalf("Invalid MBRIDGE_LOG_LEVEL value %q: %s", v, err)
		}
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))

	g, ctx := errgroup.WithContext(ctx)

	mqttConfig, err := mbridge.NewConfig(env.Options{Prefix: mqttPrefix})
	if err != nil {
		logger.Error("Failed to load MQTT configuration", slog.Any("error", err))
		os.Exit(1)
	}
	mqttProxy := mqtt.New(mqttConfig, logger)
	if err := simple.Register(mqttProxy, logger); err != nil {
		logger.Error("Failed to register hooks", slog.Any("error", err))
		os.Exit(1)
	}
	g.Go(func() error {
		return mqttProxy.Listen(ctx)
	})

	wsConfig, err := mbridge.NewConfig(env.Options{Prefix: wsPrefix})
	if err != nil {
		logger.Error("Failed to load WS configuration", slog.Any("error", err))
		os.Exit(1)
	}
	wsProxy := websocket.New(wsConfig, logger)
	if err := simple.Register(wsProxy, logger); err != nil {
		logger.Error("Failed to register hooks", slog.Any("error", err))
		os.Exit(1)
	}
	g.Go(func() error {
		return wsProxy.Listen(ctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("mBridge terminated", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("mBridge exiting...")
}
