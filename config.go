// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mbridge

import (
	"crypto/tls"
	"time"

	mptls "github.com/absmach/mbridge/pkg/tls"
	"github.com/caarlos0/env/v11"
)

// Config holds the settings of one bridge listener.
type Config struct {
	Address    string        `env:"ADDRESS"     envDefault:""`
	PathPrefix string        `env:"PATH_PREFIX" envDefault:"/mqtt"`
	Target     string        `env:"TARGET"      envDefault:""`
	OpTimeout  time.Duration `env:"OP_TIMEOUT"  envDefault:"30s"`
	Username   string        `env:"USERNAME"    envDefault:""`
	Password   string        `env:"PASSWORD"    envDefault:""`
	TLSConfig  *tls.Config
}

// NewConfig loads a listener configuration from the environment, including
// the optional TLS material.
func NewConfig(opts env.Options) (Config, error) {
	c := Config{}
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}

	tlsCfg, err := mptls.NewConfig(opts)
	if err != nil {
		return Config{}, err
	}
	c.TLSConfig, err = mptls.Load(&tlsCfg)
	if err != nil {
		return Config{}, err
	}
	return c, nil
}
